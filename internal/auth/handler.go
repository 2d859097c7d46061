package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"
)

// TokenHandler exchanges the shared admin password for a JWT. The admin
// panel's real account system lives outside this service; consoles
// identify themselves with an admin_id of their choosing.
func TokenHandler(secret []byte, adminPassword string, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Password string `json:"password"`
			AdminID  string `json:"admin_id"`
			Name     string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if payload.AdminID == "" {
			http.Error(w, "admin_id is required", http.StatusBadRequest)
			return
		}
		if subtle.ConstantTimeCompare([]byte(payload.Password), []byte(adminPassword)) != 1 {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		token, err := GenerateToken(secret, payload.AdminID, payload.Name, ttl)
		if err != nil {
			http.Error(w, "could not issue token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}
