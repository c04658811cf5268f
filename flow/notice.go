package flow

// NoticeKind classifies the outcome of a user action.
type NoticeKind int

const (
	// NoticeCodeSent: the backend accepted the code request.
	NoticeCodeSent NoticeKind = iota + 1
	// NoticeLoggedIn: the code was accepted and the token stored.
	NoticeLoggedIn
	// NoticeValidation: the student ID was empty; nothing was sent.
	NoticeValidation
	// NoticeParseError: the response body was not JSON.
	NoticeParseError
	// NoticeServerRejection: the backend refused the code request.
	NoticeServerRejection
	// NoticeConnectivity: no response was received.
	NoticeConnectivity
	// NoticeInvalidCode: the backend refused the submitted code.
	NoticeInvalidCode
	// NoticeTokenNotSaved: the backend accepted the code but no token
	// could be extracted or stored.
	NoticeTokenNotSaved
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeCodeSent:
		return "code_sent"
	case NoticeLoggedIn:
		return "logged_in"
	case NoticeValidation:
		return "validation"
	case NoticeParseError:
		return "parse_error"
	case NoticeServerRejection:
		return "server_rejection"
	case NoticeConnectivity:
		return "connectivity"
	case NoticeInvalidCode:
		return "invalid_code"
	case NoticeTokenNotSaved:
		return "token_not_saved"
	default:
		return "unknown"
	}
}

// Notice is a modal message for the user.
type Notice struct {
	Kind    NoticeKind
	Title   string
	Message string
}

// OK reports whether the notice announces a successful step.
func (n Notice) OK() bool {
	return n.Kind == NoticeCodeSent || n.Kind == NoticeLoggedIn
}

const (
	msgCodeSent           = "A verification code has been sent to your email."
	msgLoggedIn           = "You have been successfully logged in!"
	msgEmptyPrefix        = "Please enter your student ID before the domain."
	msgNotJSON            = "Server response was not in JSON format"
	msgSendFailed         = "Failed to send verification code"
	msgConnectFailed      = "Failed to connect to the server"
	msgInvalidCode        = "Invalid verification code, please try again."
	msgTokenNotSaved      = "Login succeeded but the access token could not be saved"
	titleError            = "Error"
	titleVerification     = "Verification"
	titleVerificationDone = "Verification Success"
	titleInvalidEmail     = "Invalid Email"
	titleInvalidCode      = "Invalid Code"
)

func codeSentNotice() Notice {
	return Notice{Kind: NoticeCodeSent, Title: titleVerification, Message: msgCodeSent}
}

func loggedInNotice() Notice {
	return Notice{Kind: NoticeLoggedIn, Title: titleVerificationDone, Message: msgLoggedIn}
}

func validationNotice() Notice {
	return Notice{Kind: NoticeValidation, Title: titleInvalidEmail, Message: msgEmptyPrefix}
}

func parseErrorNotice() Notice {
	return Notice{Kind: NoticeParseError, Title: titleError, Message: msgNotJSON}
}

func rejectionNotice(serverMessage string) Notice {
	msg := serverMessage
	if msg == "" {
		msg = msgSendFailed
	}
	return Notice{Kind: NoticeServerRejection, Title: titleError, Message: msg}
}

func connectivityNotice() Notice {
	return Notice{Kind: NoticeConnectivity, Title: titleError, Message: msgConnectFailed}
}

func invalidCodeNotice() Notice {
	return Notice{Kind: NoticeInvalidCode, Title: titleInvalidCode, Message: msgInvalidCode}
}

func tokenNotSavedNotice() Notice {
	return Notice{Kind: NoticeTokenNotSaved, Title: titleError, Message: msgTokenNotSaved}
}
