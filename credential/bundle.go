// Package credential holds the pre-signed authorization used for direct uploads to the storage
// bucket and the providers that hand it out.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultACL is the canned ACL uploads are stored with unless configured otherwise.
	DefaultACL = "private"
	// DefaultAlgorithm is the signature version 4 algorithm name.
	DefaultAlgorithm = "AWS4-HMAC-SHA256"
)

// Form field names of an S3 POST upload.
const (
	FieldKey           = "key"
	FieldACL           = "acl"
	FieldPolicy        = "policy"
	FieldAlgorithm     = "x-amz-algorithm"
	FieldCredential    = "x-amz-credential"
	FieldDate          = "x-amz-date"
	FieldSignature     = "x-amz-signature"
	FieldSecurityToken = "x-amz-security-token"
)

// Field is a single name/value pair of the upload form.
type Field struct {
	Name  string
	Value string
}

// Bundle is a pre-signed, time bounded authorization to POST objects into a bucket.
// It is treated as opaque: nothing here can create or re-sign one.
type Bundle struct {
	// URL is the bucket endpoint the form is posted to.
	URL           string
	ACL           string
	Policy        string
	Algorithm     string
	Credential    string
	Date          string
	Signature     string
	SecurityToken string
	// Fields holds any additional form fields required by the policy (for example
	// Content-Type or success_action_status conditions).
	Fields map[string]string
	// ExpiresAt is the zero time when the expiry is unknown.
	ExpiresAt time.Time
}

// Validate checks that the bundle carries everything needed to build an upload form.
func (b Bundle) Validate() error {
	var missing []string
	if b.URL == "" {
		missing = append(missing, "url")
	}
	if b.Policy == "" {
		missing = append(missing, FieldPolicy)
	}
	if b.Signature == "" {
		missing = append(missing, FieldSignature)
	}
	if b.Credential == "" {
		missing = append(missing, FieldCredential)
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid upload credential, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Expired reports whether the bundle is past its expiry at the given time.
func (b Bundle) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt)
}

// FormFields returns the form fields for uploading the given object key, in the order the
// storage service expects them. Empty optional values are left out; the file part is not
// included and has to be written last.
func (b Bundle) FormFields(key string) []Field {
	fields := []Field{
		{Name: FieldKey, Value: key},
		{Name: FieldACL, Value: b.ACL},
		{Name: FieldPolicy, Value: b.Policy},
		{Name: FieldAlgorithm, Value: b.Algorithm},
		{Name: FieldCredential, Value: b.Credential},
		{Name: FieldDate, Value: b.Date},
		{Name: FieldSignature, Value: b.Signature},
		{Name: FieldSecurityToken, Value: b.SecurityToken},
	}

	result := make([]Field, 0, len(fields)+len(b.Fields))
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		result = append(result, f)
	}

	extra := make([]string, 0, len(b.Fields))
	for name := range b.Fields {
		if isReserved(name) {
			continue
		}
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		result = append(result, Field{Name: name, Value: b.Fields[name]})
	}

	return result
}

func isReserved(name string) bool {
	switch strings.ToLower(name) {
	case FieldKey, FieldACL, FieldPolicy, FieldAlgorithm, FieldCredential, FieldDate, FieldSignature, FieldSecurityToken, "file":
		return true
	}
	return false
}

// PolicyExpiration decodes a base64 encoded POST policy document and returns its expiration.
// A policy without an expiration returns the zero time.
func PolicyExpiration(policy string) (time.Time, error) {
	if policy == "" {
		return time.Time{}, errors.New("empty policy")
	}

	raw, err := base64.StdEncoding.DecodeString(policy)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode policy: %w", err)
	}

	var document struct {
		Expiration string `json:"expiration"`
	}
	if err := json.Unmarshal(raw, &document); err != nil {
		return time.Time{}, fmt.Errorf("parse policy: %w", err)
	}
	if document.Expiration == "" {
		return time.Time{}, nil
	}

	expiration, err := time.Parse(time.RFC3339, document.Expiration)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse policy expiration: %w", err)
	}
	return expiration, nil
}
