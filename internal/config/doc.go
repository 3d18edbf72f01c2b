// Package config loads the homepage server configuration.
//
// The configuration lives in homepage.yaml (or homepage.json) at the project
// root. Environment variables prefixed with HOMEPAGE_ override file values.
//
// # Configuration File Structure
//
//	origin: https://yanachan.example
//	addr: localhost:3000
//	assets: public
//	language: zh-CN
//	cache:
//	  version: yanchan-v1.0.0
//	  offlinePage: /home.html
//	  watch: true
//	storage:
//	  driver: sqlite
//	  dsn: homepage.db
//	log:
//	  level: debug
//	  format: text
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Addr)
package config
