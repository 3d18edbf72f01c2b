// Package toast provides shorthand for user-facing feedback notifications.
//
// Toasts are entries of the store's ui.notifications list. Adding one emits
// events.NotificationShow, which is what renderers and the live event stream
// listen for:
//
//	bus.On(events.NotificationShow, func(e events.Event) error {
//	    n := e.Payload.(store.Notification)
//	    render(n.Type, n.Message)
//	    return nil
//	})
//
// Usage from handlers:
//
//	if err := api.SendMessage(ctx, text); err != nil {
//	    toast.Error(st, "留言发送失败")
//	    return err
//	}
//	toast.Success(st, "留言成功")
//
// With title:
//
//	toast.WithTitle(st, toast.TypeSuccess, "Settings", "Your changes have been saved.")
package toast
