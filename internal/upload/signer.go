package upload

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidPreviewToken = errors.New("invalid preview token")

const previewSubject = "preview"

// PreviewClaims identify one stored preview.
type PreviewClaims struct {
	FileID   string `json:"fid"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	MimeType string `json:"mime"`
	jwt.RegisteredClaims
}

// URLSigner mints and checks the expiring links that serve previews.
type URLSigner struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewURLSigner(secret string, ttl time.Duration, baseURL string) *URLSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &URLSigner{
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Sign returns the preview URL for a stored file.
func (s *URLSigner) Sign(fileID, key, name, mimeType string) (string, error) {
	now := s.now()
	claims := &PreviewClaims{
		FileID:   fileID,
		Key:      key,
		Name:     name,
		MimeType: mimeType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   previewSubject,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign preview: %w", err)
	}
	return s.baseURL + "/api/previews/" + token, nil
}

// Parse validates a preview token taken from the URL path.
func (s *URLSigner) Parse(token string) (*PreviewClaims, error) {
	claims := &PreviewClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithSubject(previewSubject),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Key == "" {
		return nil, ErrInvalidPreviewToken
	}
	return claims, nil
}
