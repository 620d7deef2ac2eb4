package claim

import (
	"memberdesk/cmd/internal/linktoken"
	"memberdesk/cmd/internal/member"
)

// View is what the member sees for a session.
type View struct {
	State           State  `json:"state"`
	Reason          string `json:"reason,omitempty"`
	Icon            string `json:"icon"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	MemberFirstName string `json:"member_first_name,omitempty"`
}

func render(p linktoken.Purpose, state State, reason string, m member.Member) View {
	v := View{State: state, Reason: reason}
	switch state {
	case StateLoading:
		v.Icon, v.Title, v.Description = "hourglass", "Checking your link", "One moment while we verify your link."
	case StateInvalid:
		if reason == ReasonSuperseded {
			v.Icon, v.Title, v.Description = "link-off", "Link replaced",
				"A newer link has been sent to you. Please use the most recent email from us."
		} else {
			v.Icon, v.Title, v.Description = "link-off", "Invalid link",
				"This link is not valid. Check that you copied the whole address from your email."
		}
	case StateExpired:
		v.Icon, v.Title, v.Description = "clock", "Link expired",
			"This link has expired. Please contact us and we will send you a new one."
	case StateAlreadyUsed:
		v.Icon, v.Title, v.Description = "check-circle", "Already completed",
			"This link has already been used. There is nothing more you need to do."
	case StateReady, StateSubmitting:
		v.MemberFirstName = m.FirstName
		switch p {
		case linktoken.PurposeDocumentUpload:
			v.Icon, v.Title, v.Description = "upload", "Upload your documents",
				"Please upload the front and back of your identity document. Each file must be under 5 MiB."
		default:
			v.Icon, v.Title, v.Description = "signature", "Sign your declaration",
				"Please confirm both statements and type your full name to sign."
		}
	case StateSuccess:
		v.MemberFirstName = m.FirstName
		switch p {
		case linktoken.PurposeDocumentUpload:
			v.Icon, v.Title, v.Description = "check-circle", "Documents received",
				"Thank you. Your documents have been uploaded securely."
		default:
			v.Icon, v.Title, v.Description = "check-circle", "Declaration signed",
				"Thank you. Your signed declaration has been recorded."
		}
	default:
		if reason == ReasonSuperseded {
			v.Icon, v.Title, v.Description = "alert-triangle", "Link replaced",
				"A newer link was issued while you were working. Please use the most recent email from us."
		} else {
			v.Icon, v.Title, v.Description = "alert-triangle", "Something went wrong",
				"We could not complete your request. Please contact us rather than trying again."
		}
	}
	return v
}
