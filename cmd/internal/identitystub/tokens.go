package identitystub

import (
	"errors"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// ErrInvalidToken is returned for tokens that fail signature, issuer or time checks.
var ErrInvalidToken = errors.New("identitystub: invalid token")

// Claims is the identity carried by a stub token.
type Claims struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager issues and verifies PASETO v4.public tokens.
type TokenManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewTokenManager builds a TokenManager from cfg, generating an ephemeral
// key when cfg.SecretKeyHex is empty.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	var secret paseto.V4AsymmetricSecretKey
	if cfg.SecretKeyHex == "" {
		secret = paseto.NewV4AsymmetricSecretKey()
	} else {
		k, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.SecretKeyHex)
		if err != nil {
			return nil, ErrConfig
		}
		secret = k
	}

	return &TokenManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.TokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

// PublicKeyHex returns the verification key.
func (m *TokenManager) PublicKeyHex() string {
	return m.public.ExportHex()
}

// Issue signs a token for userID. tokenID identifies it for revocation.
func (m *TokenManager) Issue(userID, tokenID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	tok.SetJti(tokenID)
	if err := tok.Set("uid", userID); err != nil {
		return "", time.Time{}, err
	}

	return tok.V4Sign(m.secret, nil), exp, nil
}

// Verify checks signature, issuer and validity window.
func (m *TokenManager) Verify(token string, now time.Time) (Claims, error) {
	// Validate slightly in the future so small clock differences do not fail "nbf".
	validNow := now.Add(m.clockSkew)

	// Fresh parser per call; rules accumulate on a shared one.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return Claims{}, ErrInvalidToken
	}
	jti, err := parsed.GetJti()
	if err != nil || jti == "" {
		return Claims{}, ErrInvalidToken
	}
	iat, _ := parsed.GetIssuedAt()
	exp, _ := parsed.GetExpiration()

	return Claims{UserID: uid, TokenID: jti, IssuedAt: iat, ExpiresAt: exp}, nil
}
