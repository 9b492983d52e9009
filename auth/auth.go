package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"meshgate/internal/models"
	"meshgate/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized  = errors.New("unauthorized user")
	ErrUnknownApikey = errors.New("unknown api key")
)

// Save kinds requested from the save queue
const (
	SaveKindAuth   = "auth"
	SaveKindConfig = "config"
)

// Default admin credentials created when the gateway config holds none
const (
	DefaultUsername = "delight"
	DefaultPassword = "delight"
)

// Repository persists api keys and the gateway config
type Repository interface {
	LoadApiAuths(ctx context.Context) ([]models.ApiAuth, error)
	SaveApiAuths(ctx context.Context, auths []models.ApiAuth) error
	LoadConfig(ctx context.Context) (map[string]string, error)
	SaveConfig(ctx context.Context, values map[string]string) error
}

// SaveRequester schedules a coalesced save
type SaveRequester interface {
	QueSave(kind string, delay time.Duration)
}

type AuthModule struct {
	mu        sync.Mutex
	repo      Repository
	saves     SaveRequester
	JWTSecret string

	adminUser string
	adminHash string
	config    map[string]string
	auths     []*models.ApiAuth

	// lastAuthSave throttles last-use saves
	lastAuthSave time.Time
	now          func() time.Time
	log          *zerolog.Logger
}

func NewAuthModule(repo Repository, saves SaveRequester, JWTSecret string) *AuthModule {
	return &AuthModule{
		repo:      repo,
		saves:     saves,
		JWTSecret: JWTSecret,
		config:    make(map[string]string),
		now:       time.Now,
		log:       utils.Logger("auth"),
	}
}

// Load reads api keys and gateway config, then initializes the admin credentials
func (a *AuthModule) Load(ctx context.Context) error {
	auths, err := a.repo.LoadApiAuths(ctx)
	if err != nil {
		return fmt.Errorf("load api keys: %w", err)
	}
	cfg, err := a.repo.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load gateway config: %w", err)
	}

	a.mu.Lock()
	a.auths = a.auths[:0]
	for i := range auths {
		rec := auths[i]
		a.auths = append(a.auths, &rec)
	}
	for k, v := range cfg {
		a.config[k] = v
	}
	a.mu.Unlock()

	a.log.Info().Int("apikeys", len(auths)).Msg("authentication loaded")
	return a.InitAuthentication()
}

// InitAuthentication takes the admin credentials from the gateway config.
// When none are stored the default pair is created and the config is saved.
func (a *AuthModule) InitAuthentication() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.adminUser = a.config[models.ConfigGatewayUsername]
	a.adminHash = a.config[models.ConfigGatewayPassword]
	if a.adminUser != "" && a.adminHash != "" {
		return nil
	}

	a.log.Info().Msg("create default username and password")
	hash, err := hashCredentials(basicToken(DefaultUsername, DefaultPassword))
	if err != nil {
		return err
	}
	a.adminUser = DefaultUsername
	a.adminHash = hash
	a.config[models.ConfigGatewayUsername] = a.adminUser
	a.config[models.ConfigGatewayPassword] = a.adminHash
	a.saves.QueSave(SaveKindConfig, utils.ShortSaveDelay)
	return nil
}

// SetCredentials replaces the admin credentials
func (a *AuthModule) SetCredentials(username, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password must not be empty")
	}
	hash, err := hashCredentials(basicToken(username, password))
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.adminUser = username
	a.adminHash = hash
	a.config[models.ConfigGatewayUsername] = username
	a.config[models.ConfigGatewayPassword] = hash
	a.mu.Unlock()
	a.saves.QueSave(SaveKindConfig, utils.ShortSaveDelay)
	return nil
}

func basicToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

func hashCredentials(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AllowedToCreateApikey checks HTTP basic credentials against the admin hash
func (a *AuthModule) AllowedToCreateApikey(authorization string) bool {
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || scheme != "Basic" || token == "" {
		return false
	}
	a.mu.Lock()
	hash := a.adminHash
	a.mu.Unlock()
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		a.log.Info().Msg("invalid admin credentials")
		return false
	}
	return true
}

// CheckApikey authenticates a request. Internal requests, issued by
// triggering rules, are always allowed.
func (a *AuthModule) CheckApikey(apikey, userAgent string, internal bool) error {
	if apikey == "" {
		return ErrUnauthorized
	}
	if internal {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	rec := a.find(apikey)
	if rec == nil {
		return ErrUnauthorized
	}

	now := a.now()
	rec.LastUseDate = now.UTC()
	if rec.UserAgent == "" && userAgent != "" {
		rec.UserAgent = userAgent
		a.log.Debug().Str("useragent", userAgent).Str("apikey", apikey).Msg("set useragent")
	}
	rec.NeedSave = true
	if a.lastAuthSave.IsZero() || now.Sub(a.lastAuthSave) > utils.AuthSaveInterval {
		a.lastAuthSave = now
		a.saves.QueSave(SaveKindAuth, utils.HugeSaveDelay)
	}
	return nil
}

func (a *AuthModule) find(apikey string) *models.ApiAuth {
	for _, rec := range a.auths {
		if rec.APIKey == apikey && rec.State == models.ApiAuthNormal {
			return rec
		}
	}
	return nil
}

// CreateApikey issues a signed api key and adds it to the whitelist
func (a *AuthModule) CreateApikey(devicetype, userAgent string) (string, error) {
	if devicetype == "" {
		devicetype = "unknown"
	}
	now := a.now()
	claims := jwt.MapClaims{
		"jti":        uuid.NewString(),
		"devicetype": devicetype,
		"iat":        now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	apikey, err := token.SignedString([]byte(a.JWTSecret))
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.auths = append(a.auths, &models.ApiAuth{
		APIKey:      apikey,
		DeviceType:  devicetype,
		UserAgent:   userAgent,
		CreateDate:  now.UTC(),
		LastUseDate: now.UTC(),
		NeedSave:    true,
	})
	a.mu.Unlock()

	a.saves.QueSave(SaveKindAuth, utils.ShortSaveDelay)
	a.log.Info().Str("devicetype", devicetype).Msg("api key created")
	return apikey, nil
}

// ValidateApikey verifies the signature of an api key and returns its device type
func (a *AuthModule) ValidateApikey(apikey string) (string, error) {
	parsedToken, err := jwt.Parse(apikey, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	if claims, ok := parsedToken.Claims.(jwt.MapClaims); ok && parsedToken.Valid {
		dt, _ := claims["devicetype"].(string)
		return dt, nil
	}
	return "", errors.New("invalid token")
}

// DeleteApikey marks an api key deleted. It is removed on the next auth save.
func (a *AuthModule) DeleteApikey(apikey string) error {
	a.mu.Lock()
	rec := a.find(apikey)
	if rec == nil {
		a.mu.Unlock()
		return ErrUnknownApikey
	}
	rec.State = models.ApiAuthDeleted
	rec.NeedSave = true
	a.mu.Unlock()

	a.saves.QueSave(SaveKindAuth, utils.ShortSaveDelay)
	return nil
}

// Whitelist returns copies of the usable api keys
func (a *AuthModule) Whitelist() []models.ApiAuth {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.ApiAuth, 0, len(a.auths))
	for _, rec := range a.auths {
		if rec.State == models.ApiAuthNormal {
			out = append(out, *rec)
		}
	}
	return out
}

// FlushAuth writes every api key that needs saving
func (a *AuthModule) FlushAuth(ctx context.Context) error {
	a.mu.Lock()
	var dirty []models.ApiAuth
	for _, rec := range a.auths {
		if rec.NeedSave {
			dirty = append(dirty, *rec)
		}
	}
	a.mu.Unlock()
	if len(dirty) == 0 {
		return nil
	}

	if err := a.repo.SaveApiAuths(ctx, dirty); err != nil {
		return fmt.Errorf("save api keys: %w", err)
	}

	saved := make(map[string]bool, len(dirty))
	for _, d := range dirty {
		saved[d.APIKey] = true
	}
	a.mu.Lock()
	kept := a.auths[:0]
	for _, rec := range a.auths {
		if saved[rec.APIKey] {
			if rec.State == models.ApiAuthDeleted {
				continue
			}
			rec.NeedSave = false
		}
		kept = append(kept, rec)
	}
	a.auths = kept
	a.mu.Unlock()

	a.log.Debug().Int("count", len(dirty)).Msg("api keys saved")
	return nil
}

// FlushConfig writes the gateway config
func (a *AuthModule) FlushConfig(ctx context.Context) error {
	a.mu.Lock()
	values := make(map[string]string, len(a.config))
	for k, v := range a.config {
		values[k] = v
	}
	a.mu.Unlock()
	if err := a.repo.SaveConfig(ctx, values); err != nil {
		return fmt.Errorf("save gateway config: %w", err)
	}
	return nil
}
