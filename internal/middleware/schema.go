package middleware

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Request body schemas.
const (
	SchemaCreateBooking     = "create_booking"
	SchemaDeclineBooking    = "decline_booking"
	SchemaApplyPromocode    = "apply_promocode"
	SchemaCreatePromocode   = "create_promocode"
	SchemaRequestWithdrawal = "request_withdrawal"
	SchemaRejectWithdrawal  = "reject_withdrawal"
)

const maxBodyBytes = 1 << 20

// Schemas holds the compiled request body schemas by name.
type Schemas map[string]*jsonschema.Schema

// LoadSchemas compiles every embedded schema.
func LoadSchemas() (Schemas, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	out := make(Schemas, len(entries))
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %q: %w", name, err)
		}
		s, err := jsonschema.CompileString("https://gigbook.dev/schemas/"+name, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// ValidateBody rejects requests whose JSON body does not match the named
// schema, then restores r.Body so the handler can decode it.
func (s Schemas) ValidateBody(name string) func(http.Handler) http.Handler {
	schema, ok := s[name]
	if !ok {
		panic("unknown request schema " + name)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var doc any
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.UseNumber()
			if err := dec.Decode(&doc); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if err := schema.Validate(doc); err != nil {
				writeSchemaError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeSchemaError(w http.ResponseWriter, err error) {
	msg := err.Error()
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		for len(ve.Causes) > 0 {
			ve = ve.Causes[0]
		}
		msg = strings.TrimPrefix(ve.InstanceLocation+": "+ve.Message, ": ")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, `{"code":"invalid_body","error":%q}`, msg)
}
