package setupinfra

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/fsx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/secret"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
)

const configFile = "setup_config.json"

// FileConfigStore writes the configuration chosen during setup next to the
// state file. The database URL and the email secret are sealed with the
// process cipher before they touch disk.
type FileConfigStore struct {
	fs     fsx.FileSystem
	cipher secret.Cipher
}

func NewFileConfigStore(fs fsx.FileSystem, cipher secret.Cipher) *FileConfigStore {
	return &FileConfigStore{fs: fs, cipher: cipher}
}

func (s *FileConfigStore) Save(ctx context.Context, cfg setup.PersistedConfig) error {
	var err error
	if cfg.DatabaseURL, err = s.cipher.Encrypt(cfg.DatabaseURL); err != nil {
		return err
	}
	if cfg.Email.SecretAccessKey, err = secret.EncryptOptional(s.cipher, cfg.Email.SecretAccessKey); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errx.Wrap(err, "failed to encode setup configuration", errx.TypeInternal)
	}
	if err := s.fs.WriteFile(ctx, configFile, data); err != nil {
		return errx.Wrap(err, "failed to write setup configuration", errx.TypeInternal)
	}
	return nil
}

func (s *FileConfigStore) Load(ctx context.Context) (*setup.PersistedConfig, error) {
	data, err := s.fs.ReadFile(ctx, configFile)
	if err != nil {
		if errors.Is(err, fsx.ErrNotExist) {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to read setup configuration", errx.TypeInternal)
	}

	var cfg setup.PersistedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errx.Wrap(err, "setup configuration file is corrupt", errx.TypeInternal)
	}
	if cfg.DatabaseURL, err = s.cipher.Decrypt(cfg.DatabaseURL); err != nil {
		return nil, err
	}
	if cfg.Email.SecretAccessKey, err = secret.DecryptOptional(s.cipher, cfg.Email.SecretAccessKey); err != nil {
		return nil, err
	}
	return &cfg, nil
}
