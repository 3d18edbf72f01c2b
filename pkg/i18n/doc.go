// Package i18n picks the user's language and looks up display strings.
//
// Two languages are supported: zh-CN (the default) and en. The chosen
// language is saved under the storage key "language" and mirrored into the
// store's app.language:
//
//	tr := i18n.New(i18n.WithStorage(storage), i18n.WithStore(st))
//	tr.Detect(ctx, r.Header.Get("Accept-Language"))
//	tr.T("message.greeting", i18n.Params{"name": "Yana"}) // 你好，Yana！
//
// Lookups fall back to the default language, then to the key itself.
package i18n
