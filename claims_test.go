package jwtclaims

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	ijson "github.com/bionicotaku/lingo-utils-jwtclaims/internal/json"
)

const mikkyangPayload = `{"iss":"mikkyang.com","exp":1302319100,"aud":["audience"],"custom_claim":true}`

func TestDecode_RegisteredAndPrivate(t *testing.T) {
	claims, err := Decode([]byte(mikkyangPayload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	r := claims.Registered
	if r.Issuer == nil || *r.Issuer != "mikkyang.com" {
		t.Fatalf("unexpected issuer: %v", r.Issuer)
	}
	if r.Expiration == nil || *r.Expiration != 1302319100 {
		t.Fatalf("unexpected expiration: %v", r.Expiration)
	}
	if !reflect.DeepEqual(r.Audience, []string{"audience"}) {
		t.Fatalf("unexpected audience: %v", r.Audience)
	}
	if r.Subject != nil || r.NotBefore != nil || r.IssuedAt != nil || r.JSONWebTokenID != nil {
		t.Fatalf("unexpected asserted claims: %+v", r)
	}

	if got := claims.Private["custom_claim"]; got != true {
		t.Fatalf("unexpected custom_claim: %#v", got)
	}
	if len(claims.Private) != 1 {
		t.Fatalf("expected only custom_claim in private, got %v", claims.PrivateNames())
	}
	for _, name := range RegisteredNames() {
		if _, ok := claims.Private[name]; ok {
			t.Fatalf("registered claim %q leaked into private", name)
		}
	}
}

func TestDecode_Audience(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "string form", in: `{"aud":"audience"}`, want: []string{"audience"}},
		{name: "array form", in: `{"aud":["a","b"]}`, want: []string{"a", "b"}},
		{name: "array order kept", in: `{"aud":["b","a","b"]}`, want: []string{"b", "a", "b"}},
		{name: "empty array", in: `{"aud":[]}`, want: []string{}},
		{name: "empty string", in: `{"aud":""}`, want: []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if claims.Registered.Audience == nil {
				t.Fatalf("audience decoded as absent")
			}
			if !reflect.DeepEqual(claims.Registered.Audience, tt.want) {
				t.Fatalf("got %v, want %v", claims.Registered.Audience, tt.want)
			}
		})
	}

	t.Run("absent", func(t *testing.T) {
		claims, err := Decode([]byte(`{"iss":"x"}`))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if claims.Registered.Audience != nil {
			t.Fatalf("expected absent audience, got %#v", claims.Registered.Audience)
		}
	})
}

func TestDecode_ShapeMismatch(t *testing.T) {
	tests := []struct {
		in    string
		field string
	}{
		{`{"exp":"not-a-number"}`, ClaimExpiration},
		{`{"exp":-1}`, ClaimExpiration},
		{`{"exp":1.5}`, ClaimExpiration},
		{`{"exp":1e3}`, ClaimExpiration},
		{`{"exp":18446744073709551616}`, ClaimExpiration},
		{`{"exp":null}`, ClaimExpiration},
		{`{"nbf":true}`, ClaimNotBefore},
		{`{"iat":{}}`, ClaimIssuedAt},
		{`{"iss":5}`, ClaimIssuer},
		{`{"sub":null}`, ClaimSubject},
		{`{"jti":[]}`, ClaimJSONWebTokenID},
		{`{"aud":5}`, ClaimAudience},
		{`{"aud":null}`, ClaimAudience},
		{`{"aud":{"a":"b"}}`, ClaimAudience},
		{`{"aud":true}`, ClaimAudience},
		{`{"aud":["a",1]}`, ClaimAudience},
		{`{"aud":[["a"]]}`, ClaimAudience},
		{`{"iss":"ok","custom":1,"aud":[null]}`, ClaimAudience},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			claims, err := Decode([]byte(tt.in))
			if err == nil {
				t.Fatalf("expected error, got %+v", claims)
			}
			if claims != nil {
				t.Fatalf("expected no partial result")
			}
			if !IsShapeMismatch(err) {
				t.Fatalf("expected shape mismatch, got %v", err)
			}
			var e *Error
			if !errors.As(err, &e) || e.Field != tt.field {
				t.Fatalf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	inputs := []string{
		``,
		`{`,
		`null`,
		`[]`,
		`"claims"`,
		`42`,
		`true`,
		`{"iss":"a"} {"iss":"b"}`,
		`{"iss":"a",}`,
		`{"exp":01}`,
		`{"iat":00}`,
		`{"a":-01}`,
		`{"a":1.}`,
		`{"a":1e}`,
		`{"a":[1,{"b":01}]}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Decode([]byte(in))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !IsMalformed(err) {
				t.Fatalf("expected malformed, got %v", err)
			}
		})
	}
}

func TestDecode_PrivateValuesAreOpaque(t *testing.T) {
	in := `{"n":12345678901234567890,"f":1.25,"b":false,"z":null,"arr":[1,"x",{"y":[]}],"obj":{"exp":"nested is fine"}}`
	claims, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{
		"n":   ijson.Number("12345678901234567890"),
		"f":   ijson.Number("1.25"),
		"b":   false,
		"z":   nil,
		"arr": []any{ijson.Number("1"), "x", map[string]any{"y": []any{}}},
		"obj": map[string]any{"exp": "nested is fine"},
	}
	if !reflect.DeepEqual(claims.Private, want) {
		t.Fatalf("unexpected private claims:\n got %#v\nwant %#v", claims.Private, want)
	}
	if claims.Registered.Expiration != nil {
		t.Fatalf("nested exp must not be treated as registered")
	}
	if _, ok := claims.Private["z"]; !ok {
		t.Fatalf("null private claim dropped")
	}
}

func TestDecode_KeyDisjointness(t *testing.T) {
	in := `{"exp":1,"EXP":"upper"," exp":2,"exp ":3,"Aud":5,"aud":"x"}`
	claims, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Registered.Expiration == nil || *claims.Registered.Expiration != 1 {
		t.Fatalf("unexpected expiration: %v", claims.Registered.Expiration)
	}
	if !reflect.DeepEqual(claims.Registered.Audience, []string{"x"}) {
		t.Fatalf("unexpected audience: %v", claims.Registered.Audience)
	}
	want := []string{" exp", "Aud", "EXP", "exp "}
	if got := claims.PrivateNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got private names %q, want %q", got, want)
	}
	for _, name := range claims.PrivateNames() {
		if IsRegistered(name) {
			t.Fatalf("registered name %q in private", name)
		}
	}
}

func TestEncode_OmitsAbsentClaims(t *testing.T) {
	data, err := Encode(NewClaims(RegisteredClaims{}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("expected empty object, got %s", data)
	}

	data, err = Encode(NewClaims(RegisteredClaims{Subject: String("user-1")}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"sub":"user-1"}` {
		t.Fatalf("unexpected encoding: %s", data)
	}
	if strings.Contains(string(data), "null") {
		t.Fatalf("null emitted: %s", data)
	}
}

func TestEncode_Layout(t *testing.T) {
	claims, err := Decode([]byte(mikkyangPayload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	claims.Private["a_first"] = "x"

	data, err := Encode(claims)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"iss":"mikkyang.com","aud":["audience"],"exp":1302319100,"a_first":"x","custom_claim":true}`
	if string(data) != want {
		t.Fatalf("got %s\nwant %s", data, want)
	}
}

func TestEncode_AudienceAlwaysArray(t *testing.T) {
	claims, err := Decode([]byte(`{"aud":"audience"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data, err := Encode(claims)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"aud":["audience"]}` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	data, err = Encode(NewClaims(RegisteredClaims{Audience: []string{}}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != `{"aud":[]}` {
		t.Fatalf("asserted empty audience must be kept: %s", data)
	}
}

func TestEncode_RejectsCollision(t *testing.T) {
	claims := NewClaims(RegisteredClaims{Issuer: String("a")})
	claims.Private["iss"] = "b"

	_, err := Encode(claims)
	if CodeOf(err) != ErrCodeKeyCollision {
		t.Fatalf("expected key collision, got %v", err)
	}

	if err := claims.SetPrivate("exp", 1); CodeOf(err) != ErrCodeKeyCollision {
		t.Fatalf("SetPrivate accepted a registered name: %v", err)
	}
	if err := claims.SetPrivate("Exp", 1); err != nil {
		t.Fatalf("SetPrivate: %v", err)
	}
}

func TestEncode_Nil(t *testing.T) {
	if _, err := Encode(nil); !IsMalformed(err) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if _, err := EncodeSegment(nil); !IsMalformed(err) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestEncode_PassesThroughMarshalErrors(t *testing.T) {
	claims := NewClaims(RegisteredClaims{})
	claims.Private["bad"] = make(chan int)

	_, err := Encode(claims)
	if err == nil {
		t.Fatalf("expected error")
	}
	var e *Error
	if errors.As(err, &e) {
		t.Fatalf("marshal errors should not be wrapped, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	full := &Claims{
		Registered: RegisteredClaims{
			Issuer:         String("mikkyang.com"),
			Subject:        String("user-1"),
			Audience:       []string{"a", "b"},
			Expiration:     Seconds(1302319100),
			NotBefore:      Seconds(0),
			IssuedAt:       Seconds(18446744073709551615),
			JSONWebTokenID: String(""),
		},
		Private: map[string]any{
			"s":   "v",
			"b":   true,
			"z":   nil,
			"n":   ijson.Number("-1.5"),
			"arr": []any{"x", ijson.Number("2")},
			"obj": map[string]any{"k": []any{}},
		},
	}

	tests := map[string]*Claims{
		"zero":          {},
		"issuer only":   {Registered: RegisteredClaims{Issuer: String("mikkyang.com"), Expiration: Seconds(1302319100)}},
		"empty aud":     NewClaims(RegisteredClaims{Audience: []string{}}),
		"all asserted":  full,
		"private only":  {Private: map[string]any{"custom_claim": true}},
		"empty strings": NewClaims(RegisteredClaims{Issuer: String(""), Subject: String("")}),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			data, err := Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !json.Valid(data) {
				t.Fatalf("Encode produced invalid JSON: %s", data)
			}
			out, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode(%s): %v", data, err)
			}
			if !out.Equal(in) {
				t.Fatalf("round trip mismatch:\n in %+v\nout %+v\nwire %s", in, out, data)
			}
		})
	}
}

func TestEncode_DecodedInputStaysValid(t *testing.T) {
	inputs := []string{
		`{"a":0,"b":-0,"c":0.5,"d":-1.25e+10,"e":1E-3}`,
		`{"exp":0,"n":[0,{"m":10}]}`,
		`{"s":"\u00e9\n","nested":{"exp":"x"}}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			claims, err := Decode([]byte(in))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			data, err := Encode(claims)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !json.Valid(data) {
				t.Fatalf("Encode produced invalid JSON: %s", data)
			}
		})
	}
}

func TestStdlibJSONInterop(t *testing.T) {
	var claims Claims
	if err := json.Unmarshal([]byte(mikkyangPayload), &claims); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if *claims.Registered.Issuer != "mikkyang.com" {
		t.Fatalf("unexpected issuer")
	}

	data, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"iss":"mikkyang.com","aud":["audience"],"exp":1302319100,"custom_claim":true}` {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var wrapped struct {
		Claims *Claims `json:"claims"`
	}
	if err := json.Unmarshal([]byte(`{"claims":{"exp":"soon"}}`), &wrapped); !IsShapeMismatch(err) {
		t.Fatalf("expected shape mismatch through stdlib, got %v", err)
	}
}

func TestRegisteredClaimsJSON(t *testing.T) {
	var r RegisteredClaims
	if err := json.Unmarshal([]byte(mikkyangPayload), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"iss":"mikkyang.com","aud":["audience"],"exp":1302319100}` {
		t.Fatalf("unexpected encoding: %s", data)
	}
	if err := json.Unmarshal([]byte(`{"aud":7}`), &r); !IsShapeMismatch(err) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestFromMap(t *testing.T) {
	claims, err := FromMap(map[string]any{
		"iss":   "https://accounts.google.com",
		"exp":   float64(1700000000),
		"aud":   "client-id",
		"email": "svc@example.com",
	})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if *claims.Registered.Expiration != 1700000000 {
		t.Fatalf("unexpected expiration: %d", *claims.Registered.Expiration)
	}
	if !reflect.DeepEqual(claims.Registered.Audience, []string{"client-id"}) {
		t.Fatalf("unexpected audience: %v", claims.Registered.Audience)
	}
	if claims.Email() != "svc@example.com" {
		t.Fatalf("unexpected email: %s", claims.Email())
	}
}

func TestClaimsHelpers(t *testing.T) {
	claims, err := Decode([]byte(`{"exp":1302319100,"email":"User@Example.com","scopes":["read","", "write"],"scope":"ignored"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := claims.Email(); got != "user@example.com" {
		t.Fatalf("unexpected email: %s", got)
	}
	if got := claims.Scopes(); !reflect.DeepEqual(got, []string{"read", "write"}) {
		t.Fatalf("unexpected scopes: %v", got)
	}
	exp, ok := claims.Registered.ExpiresAt()
	if !ok || exp.Unix() != 1302319100 {
		t.Fatalf("unexpected expiry: %v %v", exp, ok)
	}
	if _, ok := claims.Registered.NotBeforeTime(); ok {
		t.Fatalf("nbf should be absent")
	}

	scoped, err := Decode([]byte(`{"scope":"a b  c"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := scoped.Scopes(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected scopes: %v", got)
	}

	clone := claims.Clone()
	if !clone.Equal(claims) {
		t.Fatalf("clone differs")
	}
	clone.Private["scopes"].([]any)[0] = "admin"
	if claims.Scopes()[0] != "read" {
		t.Fatalf("clone shares private values")
	}
}

func TestClaimsEqual(t *testing.T) {
	a := &Claims{}
	b := NewClaims(RegisteredClaims{})
	if !a.Equal(b) {
		t.Fatalf("nil and empty private maps should be equal")
	}
	if NewClaims(RegisteredClaims{Audience: []string{}}).Equal(b) {
		t.Fatalf("asserted empty audience must differ from absent")
	}
	if NewClaims(RegisteredClaims{Issuer: String("")}).Equal(b) {
		t.Fatalf("asserted empty issuer must differ from absent")
	}
}

func TestSetPrivate_RoundTrip(t *testing.T) {
	claims := NewClaims(RegisteredClaims{Issuer: String("x")})
	values := map[string]any{
		"n":     1,
		"f":     1.5,
		"big":   uint64(18446744073709551615),
		"roles": []string{"a", "b"},
		"meta":  map[string]int{"tier": 2},
		"when":  struct{ At int }{At: 3},
	}
	for name, value := range values {
		if err := claims.SetPrivate(name, value); err != nil {
			t.Fatalf("SetPrivate(%s): %v", name, err)
		}
	}
	if _, ok := claims.Private["n"].(ijson.Number); !ok {
		t.Fatalf("numbers should be stored as json.Number, got %T", claims.Private["n"])
	}
	if got := claims.Scopes(); got != nil {
		t.Fatalf("unexpected scopes: %v", got)
	}

	data, err := Encode(claims)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"iss":"x","big":18446744073709551615,"f":1.5,"meta":{"tier":2},"n":1,"roles":["a","b"],"when":{"At":3}}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !out.Equal(claims) {
		t.Fatalf("round trip mismatch:\n in %+v\nout %+v", claims, out)
	}
}

func TestSetPrivate_RejectsUnencodableValue(t *testing.T) {
	claims := NewClaims(RegisteredClaims{})
	if err := claims.SetPrivate("ch", make(chan int)); err == nil {
		t.Fatal("expected error")
	}
	if err := claims.SetPrivate("n", ijson.Number("01")); err == nil {
		t.Fatal("expected error for invalid number literal")
	}
	if len(claims.Private) != 0 {
		t.Fatalf("failed SetPrivate stored a value: %v", claims.Private)
	}
}

func TestClaimsEqual_NativePrivateValues(t *testing.T) {
	a := &Claims{Private: map[string]any{"n": 1, "roles": []string{"a"}}}
	b, err := Decode([]byte(`{"n":1,"roles":["a"]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !a.Equal(b) || !b.Equal(a) {
		t.Fatalf("expected equal")
	}
	b.Private["n"] = ijson.Number("2")
	if a.Equal(b) {
		t.Fatalf("expected different")
	}
}
