package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipsocial/social-api/internal/api"
	"github.com/clipsocial/social-api/internal/core/service"
	"github.com/clipsocial/social-api/internal/infrastructure/db/memory"
	"github.com/clipsocial/social-api/internal/infrastructure/security/password"
	"github.com/clipsocial/social-api/internal/infrastructure/security/token"
)

const testSecret = "e2e-secret-that-is-at-least-32-bytes-long"

// newServer builds the full router over the in-memory store with real
// hashing and signing.
func newServer(rl api.RateLimit) http.Handler {
	hasher, err := password.NewHasher(password.Params{
		Algorithm:   password.Bcrypt,
		BcryptCost:  bcrypt.MinCost,
		Concurrency: 4,
	})
	Expect(err).NotTo(HaveOccurred())

	tokens, err := token.NewService(token.Config{
		Secret: []byte(testSecret),
		Method: "HS256",
		TTL:    time.Hour,
	})
	Expect(err).NotTo(HaveOccurred())

	store := memory.NewIdentityRepository()
	authService := service.NewAuthService(store, hasher, tokens, nil, nil, zerolog.Nop())

	reg := prometheus.NewRegistry()
	return api.NewRouter(api.Dependencies{
		AuthService: authService,
		Verifier:    tokens,
		RateLimit:   rl,
		Log:         zerolog.Nop(),
		Registerer:  reg,
		Gatherer:    reg,
	})
}

func do(h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed(), rec.Body.String())
	return out
}

// mutate flips one character in the middle of the token signature.
func mutate(tok string) string {
	i := strings.LastIndex(tok, ".") + 5
	b := []byte(tok)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

var credentials = map[string]string{"email": "a@x.com", "password": "Secure1!"}

var _ = Describe("Authentication API", func() {
	var srv http.Handler

	BeforeEach(func() {
		srv = newServer(api.RateLimit{})
	})

	Describe("a registered account", func() {
		var id, tok string

		BeforeEach(func() {
			rec := do(srv, http.MethodPost, "/register", "", credentials)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			body := decode(rec)
			id, _ = body["id"].(string)
			tok, _ = body["token"].(string)
			Expect(id).NotTo(BeEmpty())
			Expect(tok).NotTo(BeEmpty())
		})

		It("reaches a protected route with its token", func() {
			rec := do(srv, http.MethodGet, "/me", tok, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			body := decode(rec)
			Expect(body["id"]).To(Equal(id))
			Expect(body["email"]).To(Equal("a@x.com"))
			Expect(body).NotTo(HaveKey("password_hash"))
		})

		It("rejects a protected request without credentials", func() {
			rec := do(srv, http.MethodGet, "/me", "", nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).To(Equal("Bearer"))
			Expect(decode(rec)).To(HaveKeyWithValue("message", "Unauthorized"))
		})

		It("rejects a token with one altered character", func() {
			rec := do(srv, http.MethodGet, "/me", mutate(tok), nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decode(rec)).To(HaveKeyWithValue("message", "Unauthorized"))
		})

		It("refuses a second registration for the same email in any case", func() {
			rec := do(srv, http.MethodPost, "/register", "", map[string]string{"email": "A@X.COM", "password": "Other123!"})
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(decode(rec)).To(HaveKeyWithValue("message", "email already registered"))
		})

		It("logs in and the new token identifies the same account", func() {
			rec := do(srv, http.MethodPost, "/login", "", credentials)
			Expect(rec.Code).To(Equal(http.StatusOK))
			loginTok, _ := decode(rec)["token"].(string)

			rec = do(srv, http.MethodGet, "/me", loginTok, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["id"]).To(Equal(id))
		})

		It("answers a wrong password and an unknown email identically", func() {
			wrong := do(srv, http.MethodPost, "/login", "", map[string]string{"email": "a@x.com", "password": "Wrong123!"})
			unknown := do(srv, http.MethodPost, "/login", "", map[string]string{"email": "nobody@x.com", "password": "Secure1!"})

			Expect(wrong.Code).To(Equal(http.StatusUnauthorized))
			Expect(unknown.Code).To(Equal(http.StatusUnauthorized))
			Expect(wrong.Body.String()).To(Equal(unknown.Body.String()))
			Expect(decode(wrong)).To(HaveKeyWithValue("message", "invalid credentials"))
		})

		It("changes the password", func() {
			rec := do(srv, http.MethodPut, "/me/password", tok, map[string]string{
				"current_password": "Secure1!",
				"new_password":     "Changed1!",
			})
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			Expect(do(srv, http.MethodPost, "/login", "", credentials).Code).To(Equal(http.StatusUnauthorized))
			Expect(do(srv, http.MethodPost, "/login", "", map[string]string{"email": "a@x.com", "password": "Changed1!"}).Code).
				To(Equal(http.StatusOK))
		})
	})

	It("rejects malformed registrations", func() {
		rec := do(srv, http.MethodPost, "/register", "", map[string]string{"email": "not-an-email", "password": "Secure1!"})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(decode(rec)["message"]).To(ContainSubstring("email"))

		rec = do(srv, http.MethodPost, "/register", "", map[string]string{"password": "Secure1!"})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		rec = do(srv, http.MethodPost, "/register", "", map[string]string{"email": "b@x.com", "password": "short"})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("normalizes a padded, mixed-case email before validating it", func() {
		rec := do(srv, http.MethodPost, "/register", "", map[string]string{"email": " B@X.com ", "password": "Secure1!"})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		tok, _ := decode(rec)["token"].(string)

		rec = do(srv, http.MethodGet, "/me", tok, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode(rec)["email"]).To(Equal("b@x.com"))

		rec = do(srv, http.MethodPost, "/login", "", map[string]string{"email": "b@x.com", "password": "Secure1!"})
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("answers a login with empty fields as invalid credentials", func() {
		for _, body := range []map[string]string{
			{"email": "a@x.com", "password": ""},
			{"email": "", "password": "Secure1!"},
			{},
		} {
			rec := do(srv, http.MethodPost, "/login", "", body)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized), "body %v", body)
			Expect(decode(rec)).To(HaveKeyWithValue("message", "invalid credentials"))
		}
	})

	It("serves operational endpoints without authentication", func() {
		Expect(do(srv, http.MethodGet, "/health", "", nil).Code).To(Equal(http.StatusOK))
		Expect(do(srv, http.MethodGet, "/health/ready", "", nil).Code).To(Equal(http.StatusOK))

		rec := do(srv, http.MethodGet, "/metrics", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("Credential rate limit", func() {
	It("answers 429 once the per-client burst is spent", func() {
		srv := newServer(api.RateLimit{RPS: 0.001, Burst: 2})

		bad := map[string]string{"email": "a@x.com", "password": "whatever1"}
		Expect(do(srv, http.MethodPost, "/login", "", bad).Code).To(Equal(http.StatusUnauthorized))
		Expect(do(srv, http.MethodPost, "/login", "", bad).Code).To(Equal(http.StatusUnauthorized))

		rec := do(srv, http.MethodPost, "/login", "", bad)
		Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
		Expect(decode(rec)).To(HaveKeyWithValue("message", "too many requests"))
	})
})
