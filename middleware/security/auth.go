package security

import (
	"net/http"
	"strings"

	errors "RProject/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// context keys; downstream handlers read the authenticated identity with these.
const (
	CtxTenantKey = "tenantID"
	CtxUserKey   = "userID"
	CtxDeviceKey = "deviceUUID"
)

// DeviceClaims is the device-bound credential payload: every token is tied
// to one (user, device) pair, revocation is enforced per request, not here.
type DeviceClaims struct {
	TenantID   string `json:"tenant_id"`
	UserID     string `json:"user_id"`
	DeviceUUID string `json:"device_uuid"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret                    []byte
	HeaderToken               string // default "Authorization"
	EnableAuthorizationBearer bool   // default true
}

func DefaultOptions(secret []byte) *Options {
	return &Options{
		Secret:                    secret,
		HeaderToken:               "Authorization",
		EnableAuthorizationBearer: true,
	}
}

func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
		if opts.EnableAuthorizationBearer {
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[len("bearer "):])
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ErrTokenExpired)
			return
		}

		claims := &DeviceClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method", "alg", t.Header["alg"])
			}
			return opts.Secret, nil
		})
		if err != nil || !parsed.Valid || claims.UserID == "" || claims.DeviceUUID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ErrTokenExpired)
			return
		}

		c.Set(CtxTenantKey, claims.TenantID)
		c.Set(CtxUserKey, claims.UserID)
		c.Set(CtxDeviceKey, claims.DeviceUUID)
		c.Next()
	}
}

// IssueToken mints a device-bound token; used by session issuance (external
// to this subsystem) and by tests.
func IssueToken(secret []byte, claims *DeviceClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
