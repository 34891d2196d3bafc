package connection

import (
	"context"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/skodaconnect/skodaconnect-sub000/internal/log"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
	"github.com/skodaconnect/skodaconnect-sub000/pkg/token"
)

// verifyTokens checks freshly issued tokens against the provider's published
// JWK set. The backend rejects bad tokens on its own, so verification
// failures only warn; they never fail the grant.
func (c *Connection) verifyTokens(ctx context.Context, clientName string, set token.Set) {
	jwksURL := connect.IdentityJWKSURL
	if clientName == connect.ClientVWG.Name {
		jwksURL = connect.MBBJWKSURL
	}
	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	keys, err := keyfunc.NewDefaultCtx(vctx, []string{jwksURL})
	if err != nil {
		log.Warning("fetching %s for token verification failed: %s", jwksURL, err)
		return
	}
	for _, t := range []token.Token{set.ID, set.Access} {
		if t.Value == "" {
			continue
		}
		if _, err := jwt.Parse(t.Value, keys.Keyfunc, jwt.WithValidMethods([]string{"RS256"})); err != nil {
			log.Warning("%s %s token failed verification: %s", clientName, t.Kind, err)
			continue
		}
		log.Debug("%s %s token verified", clientName, t.Kind)
	}
}
