package admin

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
)

const maxIngressBody = 1 << 20

// Ingress is the HTTP endpoint remote clusters relay admin messages
// to. Accepted messages are re-sent into the local cluster, which is
// how a relayed message reaches every node here and not just this one.
type Ingress struct {
	broker *Broker
	token  string
}

// NewIngress wires the ingress to a broker. An empty token disables
// authentication.
func NewIngress(broker *Broker, token string) *Ingress {
	return &Ingress{broker: broker, token: token}
}

func (i *Ingress) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/messages", i.handleMessage)
}

func (i *Ingress) handleMessage(w http.ResponseWriter, r *http.Request) {
	if !i.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="meridian"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngressBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := i.broker.SendRaw(r.Context(), body); err != nil {
		if fault.IsKind(err, fault.KindSerialization) {
			logging.Op().Warn("rejecting malformed admin message", "error", err)
			http.Error(w, "malformed admin message", http.StatusBadRequest)
			return
		}
		// Fan-out problems are local to this cluster. The message was
		// accepted and delivered on this node, so the sender is done.
		logging.Op().Error("admin message accepted but cluster fan-out failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (i *Ingress) authorized(r *http.Request) bool {
	if i.token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) == 1
}
