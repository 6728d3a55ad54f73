// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/unilink/internal/platform/config"
)

func TestOrigins(t *testing.T) {
	cfg := &config.Config{AllowedOrigins: " https://a.example.com, ,https://b.example.com "}
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Origins())

	assert.Empty(t, (&config.Config{}).Origins())
}

/*
TestLoad checks required variables, defaults, and trailing-slash trimming.
*/
func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/unilink")
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("APP_BASE_URL", "https://unilink.example.com/")
	t.Setenv("UNIPILE_API_BASE", "https://api1.unipile.com:13111/api/v1/")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://unilink.example.com", cfg.AppBaseURL)
	assert.Equal(t, "https://api1.unipile.com:13111/api/v1", cfg.Unipile.APIBase)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "mail.outbound", cfg.Queue.QueueName)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadRequiresSecrets(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "SECRET_KEY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	_, err := config.Load()
	assert.Error(t, err)
}
