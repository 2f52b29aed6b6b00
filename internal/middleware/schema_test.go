package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoadSchemas(t *testing.T) {
	s, err := LoadSchemas()
	if err != nil {
		t.Fatalf("LoadSchemas: %v", err)
	}
	for _, name := range []string{
		SchemaCreateBooking, SchemaDeclineBooking, SchemaApplyPromocode,
		SchemaCreatePromocode, SchemaRequestWithdrawal, SchemaRejectWithdrawal,
	} {
		if s[name] == nil {
			t.Errorf("schema %q not loaded", name)
		}
	}
}

func TestValidateBody(t *testing.T) {
	s, err := LoadSchemas()
	if err != nil {
		t.Fatalf("LoadSchemas: %v", err)
	}
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})
	h := s.ValidateBody(SchemaRequestWithdrawal)(echo)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"amount":1500,"card_id":"card_1"}`, http.StatusOK},
		{"missing card", `{"amount":1500}`, http.StatusBadRequest},
		{"zero amount", `{"amount":0,"card_id":"card_1"}`, http.StatusBadRequest},
		{"fractional amount", `{"amount":15.5,"card_id":"card_1"}`, http.StatusBadRequest},
		{"unknown field", `{"amount":1,"card_id":"c","x":1}`, http.StatusBadRequest},
		{"not json", `{`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusOK && rec.Body.String() != tc.body {
				t.Errorf("handler saw %q, want restored body", rec.Body.String())
			}
		})
	}
}
