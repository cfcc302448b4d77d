package jwtclaims

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/bionicotaku/lingo-utils-jwtclaims/internal/json"
)

// Encode renders claims as a single flat JSON object: registered claims in
// RFC order under their wire names, followed by private claims sorted by name.
// Claims that are not asserted are omitted. Errors from marshaling private
// values are returned as is. A nil c is a malformed error.
func Encode(c *Claims) ([]byte, error) {
	if c == nil {
		return nil, newError(ErrCodeMalformed, errors.New("nil claims"))
	}
	for name := range c.Private {
		if IsRegistered(name) {
			return nil, newFieldError(ErrCodeKeyCollision, name, nil)
		}
	}

	w := objectWriter{}
	if err := w.registered(c.Registered); err != nil {
		return nil, err
	}
	for _, name := range c.PrivateNames() {
		if err := w.member(name, c.Private[name]); err != nil {
			return nil, err
		}
	}
	return w.close(), nil
}

// MarshalJSON implements json.Marshaler.
func (c Claims) MarshalJSON() ([]byte, error) {
	return Encode(&c)
}

// MarshalJSON renders only the asserted registered claims.
func (r RegisteredClaims) MarshalJSON() ([]byte, error) {
	w := objectWriter{}
	if err := w.registered(r); err != nil {
		return nil, err
	}
	return w.close(), nil
}

type objectWriter struct {
	buf bytes.Buffer
	n   int
}

func (w *objectWriter) key(name string) error {
	if w.n == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	w.n++
	k, err := json.Marshal(name)
	if err != nil {
		return err
	}
	w.buf.Write(k)
	w.buf.WriteByte(':')
	return nil
}

func (w *objectWriter) member(name string, value any) error {
	if err := w.key(name); err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	w.buf.Write(v)
	return nil
}

func (w *objectWriter) seconds(name string, v *uint64) error {
	if v == nil {
		return nil
	}
	if err := w.key(name); err != nil {
		return err
	}
	w.buf.WriteString(strconv.FormatUint(*v, 10))
	return nil
}

func (w *objectWriter) str(name string, s *string) error {
	if s == nil {
		return nil
	}
	return w.member(name, *s)
}

func (w *objectWriter) registered(r RegisteredClaims) error {
	if err := w.str(ClaimIssuer, r.Issuer); err != nil {
		return err
	}
	if err := w.str(ClaimSubject, r.Subject); err != nil {
		return err
	}
	if r.Audience != nil {
		// Always the array form, even for a single audience.
		if err := w.member(ClaimAudience, r.Audience); err != nil {
			return err
		}
	}
	if err := w.seconds(ClaimExpiration, r.Expiration); err != nil {
		return err
	}
	if err := w.seconds(ClaimNotBefore, r.NotBefore); err != nil {
		return err
	}
	if err := w.seconds(ClaimIssuedAt, r.IssuedAt); err != nil {
		return err
	}
	return w.str(ClaimJSONWebTokenID, r.JSONWebTokenID)
}

func (w *objectWriter) close() []byte {
	if w.n == 0 {
		return []byte("{}")
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes()
}
