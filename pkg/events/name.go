package events

import "sort"

// Name identifies an event. Producers and consumers agree on names through
// the constants below; Valid reports whether a Name is one of them.
type Name string

const (
	UserLogin         Name = "user:login"
	UserLogout        Name = "user:logout"
	UserRegister      Name = "user:register"
	UserProfileUpdate Name = "user:profile:update"

	RouteChange Name = "route:change"
	PageLoaded  Name = "page:loaded"

	FormSubmit   Name = "form:submit"
	FormValidate Name = "form:validate"

	NetworkOnline  Name = "network:online"
	NetworkOffline Name = "network:offline"
	APIRequest     Name = "api:request"
	APIResponse    Name = "api:response"
	APIError       Name = "api:error"

	NotificationShow Name = "notification:show"
	ModalOpen        Name = "modal:open"
	ModalClose       Name = "modal:close"
	LoadingStart     Name = "loading:start"
	LoadingEnd       Name = "loading:end"

	AppInit        Name = "app:init"
	AppReady       Name = "app:ready"
	AppError       Name = "app:error"
	AppStateChange Name = "app:state:change"
	AppStateReset  Name = "app:state:reset"
)

var knownNames = map[Name]struct{}{
	UserLogin:         {},
	UserLogout:        {},
	UserRegister:      {},
	UserProfileUpdate: {},
	RouteChange:       {},
	PageLoaded:        {},
	FormSubmit:        {},
	FormValidate:      {},
	NetworkOnline:     {},
	NetworkOffline:    {},
	APIRequest:        {},
	APIResponse:       {},
	APIError:          {},
	NotificationShow:  {},
	ModalOpen:         {},
	ModalClose:        {},
	LoadingStart:      {},
	LoadingEnd:        {},
	AppInit:           {},
	AppReady:          {},
	AppError:          {},
	AppStateChange:    {},
	AppStateReset:     {},
}

// Valid reports whether n is a known event name.
func (n Name) Valid() bool {
	_, ok := knownNames[n]
	return ok
}

func (n Name) String() string {
	return string(n)
}

// Names returns every known event name in lexical order.
func Names() []Name {
	out := make([]Name, 0, len(knownNames))
	for n := range knownNames {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
