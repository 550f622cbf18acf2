package webserver

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/securecookie"
)

const flashCookieName = "formrunner_flash"

// Flash is a one-shot message shown on the next rendered form.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// flashStore keeps flash messages in a cookie signed with the server's secret key.
type flashStore struct {
	codec *securecookie.SecureCookie
}

func newFlashStore(secret string) *flashStore {
	hashKey := sha256.Sum256([]byte(secret))

	codec := securecookie.New(hashKey[:], nil)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &flashStore{codec: codec}
}

// Add appends a message to the pending flashes of the response.
func (s *flashStore) Add(w http.ResponseWriter, r *http.Request, category, message string) {
	flashes := append(s.read(r), Flash{Category: category, Message: message})

	value, err := s.codec.Encode(flashCookieName, flashes)
	if err != nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// Pop returns the pending flashes and clears the cookie. Tampered cookies are dropped.
func (s *flashStore) Pop(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := s.read(r)
	if _, err := r.Cookie(flashCookieName); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}

	return flashes
}

func (s *flashStore) read(r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}

	var flashes []Flash
	if err := s.codec.Decode(flashCookieName, cookie.Value, &flashes); err != nil {
		return nil
	}

	return flashes
}
