package resolver

import (
	"fmt"
)

// Inbound is the credential material presented by one inbound request,
// beyond any ticket already held in the session slot. At most one assertion
// shape may be present; Validate enforces that before any network call.
type Inbound struct {
	// RSVP is a one-time voucher to exchange directly for a user ticket.
	RSVP string `json:"rsvp,omitempty"`

	// UID, UIDSignature and SignatureTimestamp form an external identity
	// assertion proved by signature. All three travel together.
	UID                string `json:"UID,omitempty"`
	UIDSignature       string `json:"UIDSignature,omitempty"`
	SignatureTimestamp string `json:"signatureTimestamp,omitempty"`

	// IDToken and AccessToken form a token-pair external assertion.
	IDToken     string `json:"id_token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`

	// Authorization is the request's authorization header, used for the
	// out-of-band bearer validation path. Never part of the JSON payload.
	Authorization string `json:"-"`
}

// ValidationError reports a malformed inbound credential shape. It is
// produced before any call to the authority.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid credentials: %s", e.Message)
}

// HasVoucher reports whether a raw voucher was presented.
func (in *Inbound) HasVoucher() bool {
	return in != nil && in.RSVP != ""
}

// HasAssertion reports whether an external identity assertion was presented.
func (in *Inbound) HasAssertion() bool {
	return in != nil && (in.UID != "" || in.IDToken != "")
}

// Validate enforces the mutual-exclusivity rules: exactly one of the voucher,
// the signed-UID assertion or the token-pair assertion may be present, and
// each assertion shape must be complete.
func (in *Inbound) Validate() error {
	if in == nil {
		return nil
	}

	shapes := 0
	if in.RSVP != "" {
		shapes++
	}
	if in.UID != "" {
		shapes++
	}
	if in.IDToken != "" {
		shapes++
	}
	if shapes > 1 {
		return &ValidationError{Message: "rsvp, UID and id_token are mutually exclusive"}
	}

	if in.UID != "" && (in.UIDSignature == "" || in.SignatureTimestamp == "") {
		return &ValidationError{Message: "UID requires UIDSignature and signatureTimestamp"}
	}
	if in.IDToken != "" && in.AccessToken == "" {
		return &ValidationError{Message: "id_token requires access_token"}
	}

	return nil
}

// assertionPayload builds the body for the voucher exchange at /rsvp. The
// app id is added by the resolver.
func (in *Inbound) assertionPayload() map[string]string {
	payload := make(map[string]string)
	if in.UID != "" {
		payload["UID"] = in.UID
		payload["UIDSignature"] = in.UIDSignature
		payload["signatureTimestamp"] = in.SignatureTimestamp
	}
	if in.IDToken != "" {
		payload["id_token"] = in.IDToken
		payload["access_token"] = in.AccessToken
	}
	return payload
}
