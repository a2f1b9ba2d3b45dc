package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// nonceTick is half of a nonce's lifetime. A nonce stays valid during the
// tick it was issued in and the following one.
const nonceTick = 12 * time.Hour

// Nonces signs and checks action-bound form tokens.
type Nonces struct {
	secret []byte
	now    func() time.Time
}

func NewNonces(secret string) *Nonces {
	return &Nonces{secret: []byte(secret), now: time.Now}
}

func (n *Nonces) tick() int64 {
	return n.now().Unix() / int64(nonceTick/time.Second)
}

func (n *Nonces) sign(action string, tick int64) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(action))
	return hex.EncodeToString(mac.Sum(nil))[:20]
}

// Create returns a nonce for action.
func (n *Nonces) Create(action string) string {
	return n.sign(action, n.tick())
}

// Verify reports whether nonce was issued for action in the current or
// previous tick.
func (n *Nonces) Verify(nonce, action string) bool {
	if nonce == "" {
		return false
	}
	t := n.tick()
	for _, tick := range []int64{t, t - 1} {
		if hmac.Equal([]byte(nonce), []byte(n.sign(action, tick))) {
			return true
		}
	}
	return false
}
