package chatkit

// Dispatcher routes decoded inbound events to registered callbacks.
// Callbacks run on the session's read goroutine; keep them short.
type Dispatcher struct {
	onMessage     func(ChatMessage)
	onUserOnline  func(OnlineUser)
	onUserOffline func(int64)
	onTyping      func(int64)
	onStopTyping  func(int64)
	onRoster      func([]OnlineUser)
	onError       func(error)
	onStateChange func(StateEvent)
}

func (d *Dispatcher) SetOnMessage(fn func(ChatMessage))    { d.onMessage = fn }
func (d *Dispatcher) SetOnUserOnline(fn func(OnlineUser))  { d.onUserOnline = fn }
func (d *Dispatcher) SetOnUserOffline(fn func(int64))      { d.onUserOffline = fn }
func (d *Dispatcher) SetOnTyping(fn func(int64))           { d.onTyping = fn }
func (d *Dispatcher) SetOnStopTyping(fn func(int64))       { d.onStopTyping = fn }
func (d *Dispatcher) SetOnRoster(fn func([]OnlineUser))    { d.onRoster = fn }
func (d *Dispatcher) SetOnError(fn func(error))            { d.onError = fn }
func (d *Dispatcher) SetOnStateChange(fn func(StateEvent)) { d.onStateChange = fn }

// Dispatch fans a decoded event out to its callback, if registered.
func (d *Dispatcher) Dispatch(ev Event) {
	switch e := ev.(type) {
	case MessageReceived:
		if d.onMessage != nil {
			d.onMessage(e.Message)
		}
	case UserOnline:
		if d.onUserOnline != nil {
			d.onUserOnline(e.User)
		}
	case UserOffline:
		if d.onUserOffline != nil {
			d.onUserOffline(e.UserID)
		}
	case UserTyping:
		if d.onTyping != nil {
			d.onTyping(e.UserID)
		}
	case UserStoppedTyping:
		if d.onStopTyping != nil {
			d.onStopTyping(e.UserID)
		}
	case RosterSnapshot:
		if d.onRoster != nil {
			d.onRoster(e.Users)
		}
	case ServerError:
		d.fireError(NewError(ErrorServer, e.Message))
	}
}

func (d *Dispatcher) fireError(err error) {
	if d.onError != nil && err != nil {
		d.onError(err)
	}
}

func (d *Dispatcher) fireStateChange(ev StateEvent) {
	if d.onStateChange != nil {
		d.onStateChange(ev)
	}
}

func (d *Dispatcher) fireStopTyping(userID int64) {
	if d.onStopTyping != nil {
		d.onStopTyping(userID)
	}
}
