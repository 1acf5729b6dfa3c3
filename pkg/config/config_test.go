package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/ircium/pkg/errors"
)

const testYAML = `
client:
  max_connections: 4
  idle_timeout: 90s
  quit_message: bye
servers:
  - name: libera
    host: irc.libera.chat
    port: 6697
    secure: true
    nick: ircium
  - name: local
    host: 127.0.0.1
    port: 6667
    nick: tester
    tls:
      insecure_skip_verify: true
bridge:
  commands: [PRIVMSG, NOTICE]
  redis:
    addr: 127.0.0.1:6379
    channel_prefix: "irc:"
logger:
  level: debug
  format: json
`

func writeTestConfig(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func TestNew(t *testing.T) {
	c := New(WithAutoWatch(true), WithEnvPrefix("TEST"))
	assert.NotNil(t, c.viper)
	assert.True(t, c.autoWatch)
	assert.Equal(t, "TEST", c.envPrefix)
	assert.NotNil(t, c.envKeyReplacer)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, "config.yaml", testYAML)

	c := New(WithConfigFile(cfgPath))
	require.NoError(t, c.Load())

	assert.Equal(t, 4, c.GetInt("client.max_connections"))
	assert.Equal(t, 90*time.Second, c.GetDuration("client.idle_timeout"))
	assert.Equal(t, "bye", c.GetString("client.quit_message"))
	assert.Equal(t, []string{"PRIVMSG", "NOTICE"}, c.GetStringSlice("bridge.commands"))
	assert.True(t, c.IsSet("servers"))
	assert.Equal(t, cfgPath, c.ConfigFileUsed())
}

func TestLoadWithNameAndPaths(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir, "ircium.yaml", testYAML)

	c := New(
		WithConfigName("ircium"),
		WithConfigType("yaml"),
		WithConfigPaths(dir),
	)
	require.NoError(t, c.Load())
	assert.Equal(t, "json", c.GetString("logger.format"))
}

func TestLoadNotFound(t *testing.T) {
	c := New(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	err := c.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
	assert.Equal(t, 3001, errors.Code(err))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, "bad.yaml", "client: [unclosed")

	err := New(WithConfigFile(cfgPath)).Load()
	assert.ErrorIs(t, err, ErrConfigReadFailed)
}

func TestDefaultsAndSet(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, "config.yaml", testYAML)

	c := New(
		WithConfigFile(cfgPath),
		WithDefaults(map[string]any{"admin.addr": ":9000"}),
	)
	require.NoError(t, c.Load())
	assert.Equal(t, ":9000", c.GetString("admin.addr"))

	c.Set("admin.addr", ":9001")
	assert.Equal(t, ":9001", Get[string](c, "admin.addr"))
	assert.Equal(t, 0, Get[int](c, "admin.addr"))
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, "config.yaml", testYAML)
	t.Setenv("IRCIUM_CLIENT_QUIT_MESSAGE", "from env")

	f, c, err := LoadFile(cfgPath)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "from env", f.Client.QuitMessage)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, "config.yaml", testYAML)

	f, c, err := LoadFile(cfgPath)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 4, f.Client.MaxConnections)
	assert.Equal(t, 90*time.Second, f.Client.IdleTimeout)
	// 未出现的字段保留默认值
	assert.Equal(t, 6*time.Second, f.Client.BootstrapTimeout)
	assert.Equal(t, 10500*time.Millisecond, f.Client.ReadyTimeout)
	assert.Equal(t, 3, f.Client.WriteRetry.MaxAttempts)

	require.Len(t, f.Servers, 2)
	assert.Equal(t, ServerSettings{
		Name: "libera", Host: "irc.libera.chat", Port: 6697, Secure: true, Nick: "ircium",
	}, f.Servers[0])
	assert.True(t, f.Servers[1].TLS.InsecureSkipVerify)

	assert.Equal(t, []string{"PRIVMSG", "NOTICE"}, f.Bridge.Commands)
	require.NotNil(t, f.Bridge.Redis)
	assert.Equal(t, "irc:", f.Bridge.Redis.ChannelPrefix)
	assert.Nil(t, f.Bridge.Kafka)
	assert.Equal(t, "debug", f.Logger.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(f *File)
		wantErr bool
	}{
		{"default", func(f *File) {}, false},
		{"zero cap", func(f *File) { f.Client.MaxConnections = 0 }, true},
		{"negative idle", func(f *File) { f.Client.IdleTimeout = -time.Second }, true},
		{"no servers", func(f *File) { f.Servers = nil }, true},
		{"too many servers", func(f *File) { f.Client.MaxConnections = 1; f.Servers = append(f.Servers, ServerSettings{Name: "b", Host: "h", Port: 1}) }, true},
		{"missing host", func(f *File) { f.Servers[0].Host = "" }, true},
		{"bad port", func(f *File) { f.Servers[0].Port = 70000 }, true},
		{"duplicate name", func(f *File) { f.Servers = append(f.Servers, f.Servers[0]) }, true},
		{"bad archive driver", func(f *File) { f.Archive.Enabled = true; f.Archive.Driver = "oracle" }, true},
		{"bad tracing", func(f *File) { f.Tracing.Enabled = true; f.Tracing.ExporterType = "jaeger" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Default()
			tt.modify(f)
			err := f.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfigInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "ircium.yaml")
	require.NoError(t, WriteDefault(path))

	f, c, err := LoadFile(path)
	require.NoError(t, err)
	defer c.Close()

	def := Default()
	assert.Equal(t, def.Client, f.Client)
	assert.Equal(t, def.Servers, f.Servers)
	assert.Equal(t, def.Shutdown, f.Shutdown)
}

func TestWatchOnChange(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, "config.yaml", testYAML)

	var once sync.Once
	changed := make(chan struct{})

	c := New(
		WithConfigFile(cfgPath),
		WithAutoWatch(true),
		WithOnChange(func() {
			once.Do(func() { close(changed) })
		}),
	)
	require.NoError(t, c.Load())
	defer c.Close()
	assert.True(t, c.IsWatching())

	time.Sleep(100 * time.Millisecond)
	writeTestConfig(t, dir, "config.yaml", testYAML+"\nadmin:\n  enabled: true\n")

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("等待配置变更回调超时")
	}
	assert.Eventually(t, func() bool {
		return c.GetBool("admin.enabled")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStartWatchBeforeLoad(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.StartWatch(), ErrConfigNotFound)

	c.StopWatch()
	assert.False(t, c.IsWatching())
}

func TestOnChangePanicReported(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, "config.yaml", testYAML)

	reported := make(chan error, 1)
	c := New(
		WithConfigFile(cfgPath),
		WithOnChange(func() { panic("boom") }),
		WithOnError(func(err error) {
			select {
			case reported <- err:
			default:
			}
		}),
	)
	require.NoError(t, c.Load())
	require.NoError(t, c.StartWatch())
	defer c.Close()

	time.Sleep(100 * time.Millisecond)
	writeTestConfig(t, dir, "config.yaml", testYAML+"\n# touched\n")

	select {
	case err := <-reported:
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(2 * time.Second):
		t.Fatal("等待错误回调超时")
	}
}
