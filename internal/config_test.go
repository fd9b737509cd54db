package internal

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{}, &config)

	req.NoError(err)
	req.Equal(2*time.Second, config.GraceWindow)
	req.Equal(10*time.Second, config.ExecutionTimeout)
	req.Equal(2, config.MaxExecutionsPerRoom)
	req.Equal("python3", config.PythonBin)
	req.Equal("*", config.CorsOrigin)
	req.Nil(config.HistoryLimit)
}

func TestConfig_Overrides(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{
		"GRACE_WINDOW":            "500ms",
		"MAX_EXECUTIONS_PER_ROOM": "4",
		"JAVAC_BIN":               "/opt/jdk/bin/javac",
		"HISTORY_LIMIT":           "10",
	}, &config)

	req.NoError(err)
	req.Equal(500*time.Millisecond, config.GraceWindow)
	req.Equal(4, config.MaxExecutionsPerRoom)
	req.Equal("/opt/jdk/bin/javac", config.JavacBin)
	req.NotNil(config.HistoryLimit)
	req.Equal(10, *config.HistoryLimit)
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("#")
	req.NoError(err)
	req.Equal('#', r)

	_, err = CharacterRune("ab")
	req.Error(err)
}
