package user

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"bridgeme/internal/apperr"
	"bridgeme/internal/kv"
	"bridgeme/internal/media"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	accounts  Accounts
	directory Directory
	docs      kv.Store
	jwtSecret string
	now       func() time.Time
}

type MyJWTClaims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(accounts Accounts, directory Directory, docs kv.Store, secret string) *Service {
	return &Service{
		accounts:  accounts,
		directory: directory,
		docs:      docs,
		jwtSecret: secret,
		now:       time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*RegisterRequest, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, apperr.BadRequest("username and password are required")
	}
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	a := &Account{
		ID:       uuid.NewString(),
		Username: req.Username,
		Password: string(hashedPwd),
	}

	if _, err := s.accounts.CreateUser(ctx, a); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, apperr.Conflict(err.Error())
		}
		return nil, err
	}

	return &RegisterRequest{Username: a.Username}, nil
}

func (s *Service) Login(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	a, err := s.accounts.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(req.Password)); err != nil {
		return nil, err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       a.ID,
		Username: a.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "bridgeme",
			ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          a.ID,
		Username:    a.Username,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return "", "", err
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]Profile, error) {
	return s.directory.Search(ctx, query)
}

func (s *Service) Community(ctx context.Context) ([]Profile, error) {
	return s.directory.List(ctx)
}

func (s *Service) Member(ctx context.Context, id string) (*Profile, error) {
	p, err := s.directory.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	return p, err
}

// Profile loads the caller's own profile. ok is false when it was never saved,
// in which case the client opens the sign-up form.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, bool, error) {
	var p Profile
	found, err := kv.Load(ctx, s.docs, kv.DocProfile, userID, &p)
	if err != nil || !found {
		return nil, false, err
	}
	return &p, true, nil
}

// SaveProfile validates and stores the local profile. The avatar falls back to
// the previously stored one, then to a random placeholder.
func (s *Service) SaveProfile(ctx context.Context, userID string, in ProfileInput) (*Profile, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.BadRequest("name is required")
	}
	if in.Role != "" && !in.Role.Valid() {
		return nil, apperr.BadRequest(fmt.Sprintf("unknown role %q", in.Role))
	}
	if err := validateAvatar(in.Avatar); err != nil {
		return nil, err
	}

	existing, _, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := Profile{
		ID:       userID,
		Name:     in.Name,
		Email:    in.Email,
		Role:     in.Role,
		Location: in.Location,
		Bio:      in.Bio,
		Avatar:   in.Avatar,
		Offers:   in.Offers,
		Needs:    in.Needs,
	}
	if p.Role == "" {
		p.Role = GenZ
	}
	if p.Avatar == "" && existing != nil {
		p.Avatar = existing.Avatar
	}
	if p.Avatar == "" {
		p.Avatar = PlaceholderAvatar()
	}

	if err := kv.Save(ctx, s.docs, kv.DocProfile, userID, p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return &p, nil
}

// SaveAvatar replaces only the avatar, creating a partial profile if needed.
func (s *Service) SaveAvatar(ctx context.Context, userID, avatar string) (*Profile, error) {
	if err := validateAvatar(avatar); err != nil {
		return nil, err
	}
	p, _, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &Profile{ID: userID}
	}
	p.Avatar = avatar
	if err := kv.Save(ctx, s.docs, kv.DocProfile, userID, *p); err != nil {
		return nil, fmt.Errorf("save avatar: %w", err)
	}
	return p, nil
}

func validateAvatar(avatar string) error {
	if !strings.HasPrefix(avatar, "data:") {
		return nil
	}
	if _, err := media.ValidateImageUpload(avatar); err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			return apperr.BadRequest("Image size too large. Please choose an image under 5MB.")
		}
		return apperr.BadRequest(err.Error())
	}
	return nil
}

// PlaceholderAvatar returns a random stock avatar.
func PlaceholderAvatar() string {
	return fmt.Sprintf("https://picsum.photos/200/200?random=%d", rand.IntN(1000))
}

// IsPlaceholderAvatar reports whether avatar is a stock image rather than
// something the member picked.
func IsPlaceholderAvatar(avatar string) bool {
	return avatar == "" || strings.Contains(avatar, "picsum") || strings.Contains(avatar, "placeholder")
}
