package service

// User-facing messages returned in the JSON body.
const (
	MsgIncomplete   = "Please complete all fields."
	MsgInvalidCSRF  = "Invalid CSRF token."
	MsgWeakPassword = "Password must be at least 8 characters long, including letters and numbers."
	MsgLongPassword = "Password must be at most 72 characters long."
	MsgInvalidEmail = "Please enter a valid email address."
	MsgFieldTooLong = "Username, name, last name and email must be at most 255 characters long."
	MsgConflict     = "Username or email already in use."
	MsgFailure      = "Error attempting to register user. Please try again later."
	MsgSuccess      = "Successful registration, now you can log in."
)

// ResultKind tags the outcome of a registration attempt.
type ResultKind int

const (
	KindSuccess ResultKind = iota
	KindIncomplete
	KindInvalidCSRF
	KindWeakPassword
	KindInvalidEmail
	KindFieldTooLong
	KindConflict
	KindFailure
)

var kindNames = map[ResultKind]string{
	KindSuccess:      "success",
	KindIncomplete:   "incomplete",
	KindInvalidCSRF:  "invalid_csrf",
	KindWeakPassword: "weak_password",
	KindInvalidEmail: "invalid_email",
	KindFieldTooLong: "field_too_long",
	KindConflict:     "conflict",
	KindFailure:      "failure",
}

func (k ResultKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Result is what a registration attempt produced. Cause is for server logs only.
type Result struct {
	Kind    ResultKind
	Message string
	Cause   error
}

// OK reports whether the account was created.
func (r Result) OK() bool {
	return r.Kind == KindSuccess
}

func reject(kind ResultKind, msg string) Result {
	return Result{Kind: kind, Message: msg}
}

func failure(cause error) Result {
	return Result{Kind: KindFailure, Message: MsgFailure, Cause: cause}
}
