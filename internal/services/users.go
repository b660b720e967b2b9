package services

// 用户服务：账号创建、口令校验、登录认证以及 TOTP 多因素认证。

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"madajagad/internal/config"
	"madajagad/internal/storage"
	"madajagad/internal/utils"
)

// MinPasswordLength 口令最小长度。
const MinPasswordLength = 8

// UserService 提供用户 CRUD、认证与 MFA 能力。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*storage.User, error) {
	var u storage.User
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &u, nil
}

func (s *UserService) FindByID(ctx context.Context, id string) (*storage.User, error) {
	var u storage.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &u, nil
}

// CheckPassword 校验用户口令（bcrypt）。
func (s *UserService) CheckPassword(u *storage.User, password string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// Create 创建用户（不分配角色）。
func (s *UserService) Create(ctx context.Context, email, password, name string) (*storage.User, error) {
	var v validator
	email = strings.ToLower(strings.TrimSpace(email))
	v.required("email", email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			v.fail("email", "invalid")
		}
	}
	v.required("password", password)
	if err := v.err(); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &storage.User{Email: email, Password: string(hash), Name: strings.TrimSpace(name)}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, translateDBError(err)
	}
	return u, nil
}

// Authenticate 校验邮箱口令与（已启用时的）TOTP 验证码，成功后记录最近登录时间。
func (s *UserService) Authenticate(ctx context.Context, email, password, code string) (*storage.User, error) {
	u, err := s.FindByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !s.CheckPassword(u, password) {
		return nil, ErrBadCredentials
	}
	now := time.Now()
	if u.MFAEnabled {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, ErrMFARequired
		}
		ok, err := s.VerifyOTP(u, code)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidOTP
		}
		u.MFALastUsedAt = &now
	}
	u.LastLoginAt = &now
	if err := s.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context, limit int) ([]storage.User, error) {
	if limit <= 0 {
		limit = 100
	}
	users := make([]storage.User, 0)
	if err := s.db.WithContext(ctx).Order("created_at").Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Count 返回用户总数。
func (s *UserService) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&storage.User{}).Count(&n).Error
	return n, err
}

// Save 持久化用户字段变更。
func (s *UserService) Save(ctx context.Context, u *storage.User) error {
	return s.db.WithContext(ctx).Save(u).Error
}

// SetPassword 由管理员直接设置用户口令（无需旧口令）。
func (s *UserService) SetPassword(ctx context.Context, id, newPwd string) error {
	if len(newPwd) < MinPasswordLength {
		return ErrWeakPassword
	}
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return s.Save(ctx, u)
}

// EnsureInitialAdmin 在用户表为空时创建初始管理员并授予 admin 角色。
func (s *UserService) EnsureInitialAdmin(ctx context.Context, roles *RoleService, admin config.InitialAdminConfig) (*storage.User, error) {
	if !admin.Enable || admin.Email == "" || admin.Password == "" {
		return nil, nil
	}
	n, err := s.Count(ctx)
	if err != nil || n > 0 {
		return nil, err
	}
	u, err := s.Create(ctx, admin.Email, admin.Password, admin.Name)
	if err != nil {
		return nil, fmt.Errorf("create initial admin: %w", err)
	}
	if err := roles.Grant(ctx, u.ID, storage.RoleAdmin); err != nil {
		return nil, fmt.Errorf("grant initial admin: %w", err)
	}
	return u, nil
}

// --- MFA ---------------------------------------------------------------------

// sealSecret 在配置了 key_encryption_key 时加密 TOTP 秘钥。
func (s *UserService) sealSecret(secret string) (string, error) {
	key := s.cfg.Crypto.KeyEncryptionKey
	if key == "" || secret == "" {
		return secret, nil
	}
	return utils.EncryptAESGCM(key, []byte(secret))
}

func (s *UserService) openSecret(stored string) (string, error) {
	if !utils.IsEncrypted(stored) {
		return stored, nil
	}
	plain, err := utils.DecryptAESGCM(s.cfg.Crypto.KeyEncryptionKey, stored)
	if err != nil {
		return "", fmt.Errorf("decrypt mfa secret: %w", err)
	}
	return string(plain), nil
}

// PendingSecret 返回待激活的 TOTP 秘钥明文（可能为空）。
func (s *UserService) PendingSecret(u *storage.User) (string, error) {
	return s.openSecret(u.MFAPendingSecret)
}

// BeginMFA 为用户生成（或复用）待激活秘钥，返回明文秘钥。
func (s *UserService) BeginMFA(ctx context.Context, u *storage.User) (string, error) {
	if u.MFAPendingSecret != "" {
		return s.PendingSecret(u)
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.issuer(), AccountName: u.Email})
	if err != nil {
		return "", err
	}
	sealed, err := s.sealSecret(key.Secret())
	if err != nil {
		return "", err
	}
	u.MFAPendingSecret = sealed
	if err := s.Save(ctx, u); err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// ActivateMFA 校验验证码后启用 MFA。
func (s *UserService) ActivateMFA(ctx context.Context, u *storage.User, code string) error {
	secret, err := s.PendingSecret(u)
	if err != nil {
		return err
	}
	if secret == "" {
		return ErrNotFound
	}
	if !totp.Validate(strings.TrimSpace(code), secret) {
		return ErrInvalidOTP
	}
	now := time.Now()
	u.MFASecret = u.MFAPendingSecret
	u.MFAPendingSecret = ""
	u.MFAEnabled = true
	u.MFAEnrolledAt = &now
	u.MFALastUsedAt = &now
	return s.Save(ctx, u)
}

// DisableMFA 关闭 MFA 并清理秘钥。
func (s *UserService) DisableMFA(ctx context.Context, u *storage.User) error {
	u.MFAEnabled = false
	u.MFASecret = ""
	u.MFAPendingSecret = ""
	u.MFAEnrolledAt = nil
	return s.Save(ctx, u)
}

// VerifyOTP 使用已启用的秘钥校验验证码。
func (s *UserService) VerifyOTP(u *storage.User, code string) (bool, error) {
	secret, err := s.openSecret(u.MFASecret)
	if err != nil {
		return false, err
	}
	if secret == "" {
		return false, nil
	}
	return totp.Validate(code, secret), nil
}

// OtpauthURL 生成认证器 App 使用的 otpauth:// 链接。
func (s *UserService) OtpauthURL(u *storage.User, secret string) string {
	issuer := s.issuer()
	label := url.QueryEscape(fmt.Sprintf("%s:%s", issuer, u.Email))
	params := url.Values{}
	params.Set("secret", secret)
	params.Set("issuer", issuer)
	params.Set("period", "30")
	params.Set("algorithm", "SHA1")
	params.Set("digits", "6")
	return fmt.Sprintf("otpauth://totp/%s?%s", label, params.Encode())
}

func (s *UserService) issuer() string {
	if s.cfg.Auth.Issuer == "" {
		return "madajagad-cms"
	}
	return s.cfg.Auth.Issuer
}

// PlaintextSecrets 列出以明文保存 MFA 秘钥的用户 ID（配置 key_encryption_key 前启用的账号）。
func (s *UserService) PlaintextSecrets(ctx context.Context, limit int) ([]string, error) {
	var users []storage.User
	q := s.db.WithContext(ctx).Where("mfa_secret <> '' OR mfa_pending_secret <> ''").Order("created_at")
	if err := q.Find(&users).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if isPlainSecret(u.MFASecret) || isPlainSecret(u.MFAPendingSecret) {
			ids = append(ids, u.ID)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}

// SealSecrets 使用 key_encryption_key 加密指定用户的明文 MFA 秘钥，单事务写回。
func (s *UserService) SealSecrets(ctx context.Context, ids []string) (int, error) {
	if s.cfg.Crypto.KeyEncryptionKey == "" {
		return 0, fmt.Errorf("crypto.key_encryption_key is not configured")
	}
	sealed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			var u storage.User
			if err := tx.Where("id = ?", id).First(&u).Error; err != nil {
				return translateDBError(err)
			}
			changed := false
			for _, field := range []*string{&u.MFASecret, &u.MFAPendingSecret} {
				if !isPlainSecret(*field) {
					continue
				}
				enc, err := s.sealSecret(*field)
				if err != nil {
					return fmt.Errorf("encrypt user=%s: %w", id, err)
				}
				*field = enc
				changed = true
			}
			if !changed {
				continue
			}
			if err := tx.Model(&storage.User{}).Where("id = ?", id).Updates(map[string]any{
				"mfa_secret":         u.MFASecret,
				"mfa_pending_secret": u.MFAPendingSecret,
			}).Error; err != nil {
				return err
			}
			sealed++
		}
		return nil
	})
	return sealed, err
}

func isPlainSecret(s string) bool { return s != "" && !utils.IsEncrypted(s) }
