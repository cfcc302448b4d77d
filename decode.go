package jwtclaims

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/bionicotaku/lingo-utils-jwtclaims/internal/json"
)

// Decode parses the JSON text of a claims segment.
//
// The registered claims are extracted first and removed from the object;
// every key left over becomes a private claim. A registered key holding the
// wrong JSON type fails the whole decode, it is never demoted to a private
// claim.
func Decode(data []byte) (*Claims, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	registered, err := takeRegistered(obj)
	if err != nil {
		return nil, err
	}
	return &Claims{Registered: registered, Private: obj}, nil
}

// FromMap builds claims from an already decoded JSON object, such as the
// claims map returned by other token libraries. The map is not modified.
func FromMap(m map[string]any) (*Claims, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, newError(ErrCodeMalformed, err)
	}
	return Decode(data)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Claims) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*c = *decoded
	return nil
}

// UnmarshalJSON reads the registered claims of a claims object. Keys that are
// not registered claim names are ignored.
func (r *RegisteredClaims) UnmarshalJSON(data []byte) error {
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	registered, err := takeRegistered(obj)
	if err != nil {
		return err
	}
	*r = registered
	return nil
}

func decodeObject(data []byte) (map[string]any, error) {
	if !json.Valid(data) {
		return nil, newError(ErrCodeMalformed, errors.New("invalid JSON"))
	}
	var value any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		return nil, newError(ErrCodeMalformed, err)
	}
	if err := checkNumbers(value); err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, newError(ErrCodeMalformed, fmt.Errorf("top-level value is %s, want object", jsonKind(value)))
	}
	return obj, nil
}

// checkNumbers rejects number literals that are not valid JSON, anywhere in v.
func checkNumbers(v any) error {
	switch t := v.(type) {
	case json.Number:
		if !json.ValidNumber(string(t)) {
			return newError(ErrCodeMalformed, fmt.Errorf("invalid number literal %s", t))
		}
	case map[string]any:
		for _, item := range t {
			if err := checkNumbers(item); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range t {
			if err := checkNumbers(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// takeRegistered moves the registered claims out of obj.
func takeRegistered(obj map[string]any) (RegisteredClaims, error) {
	var (
		r   RegisteredClaims
		err error
	)
	if r.Issuer, err = takeString(obj, ClaimIssuer); err != nil {
		return RegisteredClaims{}, err
	}
	if r.Subject, err = takeString(obj, ClaimSubject); err != nil {
		return RegisteredClaims{}, err
	}
	if r.Audience, err = takeAudience(obj); err != nil {
		return RegisteredClaims{}, err
	}
	if r.Expiration, err = takeSeconds(obj, ClaimExpiration); err != nil {
		return RegisteredClaims{}, err
	}
	if r.NotBefore, err = takeSeconds(obj, ClaimNotBefore); err != nil {
		return RegisteredClaims{}, err
	}
	if r.IssuedAt, err = takeSeconds(obj, ClaimIssuedAt); err != nil {
		return RegisteredClaims{}, err
	}
	if r.JSONWebTokenID, err = takeString(obj, ClaimJSONWebTokenID); err != nil {
		return RegisteredClaims{}, err
	}
	return r, nil
}

func takeString(obj map[string]any, name string) (*string, error) {
	raw, ok := obj[name]
	if !ok {
		return nil, nil
	}
	delete(obj, name)
	s, ok := raw.(string)
	if !ok {
		return nil, shapeMismatch(name, "string", raw)
	}
	return &s, nil
}

func takeSeconds(obj map[string]any, name string) (*uint64, error) {
	raw, ok := obj[name]
	if !ok {
		return nil, nil
	}
	delete(obj, name)
	n, ok := raw.(json.Number)
	if !ok {
		return nil, shapeMismatch(name, "unsigned integer", raw)
	}
	v, err := strconv.ParseUint(string(n), 10, 64)
	if err != nil {
		return nil, newFieldError(ErrCodeShapeMismatch, name, fmt.Errorf("%s is not an unsigned 64-bit integer", n))
	}
	return &v, nil
}

// takeAudience normalizes `aud`. RFC 7519 section 4.1.3 allows a single
// string when there is one audience, otherwise an array of strings.
func takeAudience(obj map[string]any) ([]string, error) {
	raw, ok := obj[ClaimAudience]
	if !ok {
		return nil, nil
	}
	delete(obj, ClaimAudience)
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, newFieldError(ErrCodeShapeMismatch, ClaimAudience, fmt.Errorf("element %d is %s, want string", i, jsonKind(item)))
			}
			out[i] = s
		}
		return out, nil
	default:
		// null lands here as well: an explicit null is not the same as absent.
		return nil, shapeMismatch(ClaimAudience, "string or array of strings", raw)
	}
}

func shapeMismatch(name, want string, got any) error {
	return newFieldError(ErrCodeShapeMismatch, name, fmt.Errorf("got %s, want %s", jsonKind(got), want))
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
