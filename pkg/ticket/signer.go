package ticket

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hiyosi/hawk"
)

// SignRequest carries everything the MAC primitive needs to produce an
// authorization header for one outbound request.
type SignRequest struct {
	// ID, Key and Algorithm come from the credential doing the signing.
	ID        string
	Key       string
	Algorithm string

	// Method and URL identify the request being covered by the MAC.
	Method string
	URL    string

	// App is this service's app id, bound into the header so the authority
	// can attribute the request.
	App string
}

// Signer produces a MAC-based authorization header proving possession of a
// credential's key without transmitting the key itself. The MAC algorithm is
// a supplied primitive; this module never computes digests directly.
type Signer interface {
	Header(req SignRequest) (string, error)
}

// HawkSigner signs requests with the Hawk holder-of-key scheme, which is the
// scheme the authority validates.
type HawkSigner struct{}

// NewHawkSigner returns the default signer.
func NewHawkSigner() *HawkSigner {
	return &HawkSigner{}
}

// Header implements Signer.
func (*HawkSigner) Header(req SignRequest) (string, error) {
	alg, err := hawkAlg(req.Algorithm)
	if err != nil {
		return "", err
	}

	client := hawk.NewClient(
		&hawk.Credential{
			ID:  req.ID,
			Key: req.Key,
			Alg: alg,
		},
		&hawk.Option{
			TimeStamp: time.Now().Unix(),
			Nonce:     uuid.NewString()[:8],
			App:       req.App,
		},
	)

	header, err := client.Header(req.Method, req.URL)
	if err != nil {
		return "", fmt.Errorf("building hawk header: %w", err)
	}
	return header, nil
}

func hawkAlg(name string) (hawk.Alg, error) {
	switch name {
	case "", "sha256":
		return hawk.SHA256, nil
	case "sha512":
		return hawk.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported MAC algorithm %q", name)
	}
}
