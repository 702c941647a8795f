package store

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Default connection values.
const (
	DefaultScheme   = "bolt"
	DefaultHost     = "localhost"
	DefaultPort     = 27017
	DefaultDatabase = "depot"
)

// Options are the discrete fields used to build a connection target.
type Options struct {
	// URI overrides all the other fields when set.
	URI      string `toml:"uri"`
	Scheme   string `toml:"scheme"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// Target returns the connection target: `scheme://[user:pass@]host:port/database'.
func (o Options) Target() string {
	if o.URI != "" {
		return o.URI
	}

	scheme := o.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	host := o.Host
	if host == "" {
		host = DefaultHost
	}
	port := o.Port
	if port == 0 {
		port = DefaultPort
	}
	database := o.Database
	if database == "" {
		database = DefaultDatabase
	}

	u := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + database,
	}
	if o.Username != "" {
		u.User = url.UserPassword(o.Username, o.Password)
	}
	return u.String()
}

// An Opener opens the Store described by a connection target.
type Opener func(ctx context.Context, target string) (Store, error)

// Open opens the engine matching the scheme of target.
func Open(ctx context.Context, target string) (Store, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, ConnectionError(err, "malformed connection target")
	}

	switch strings.ToLower(u.Scheme) {
	case "bolt", "file":
		dir, err := localDir(u)
		if err != nil {
			return nil, err
		}
		return OpenLocal(dir)
	case "s3", "minio":
		return OpenS3(ctx, u)
	default:
		return nil, ConnectionError(errors.Errorf("unsupported scheme %q", u.Scheme), "malformed connection target")
	}
}

// LocalDir returns the directory of the local engine described by target.
func LocalDir(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", ConnectionError(err, "malformed connection target")
	}

	switch strings.ToLower(u.Scheme) {
	case "bolt", "file":
		return localDir(u)
	default:
		return "", ConnectionError(errors.Errorf("scheme %q is not a local engine", u.Scheme), "malformed connection target")
	}
}

// localDir extracts the directory from the path of u.
// It is relative to the working directory when the target has a host.
func localDir(u *url.URL) (string, error) {
	dir := u.Path
	if u.Host != "" {
		dir = strings.TrimPrefix(dir, "/")
	}
	if dir == "" {
		dir = u.Opaque
	}
	if dir == "" {
		return "", ConnectionError(errors.New("missing database"), "malformed connection target")
	}
	return dir, nil
}

// A Manager lazily opens and memoizes the process-wide Store handle.
type Manager struct {
	target string
	opener Opener
	group  singleflight.Group

	mu    sync.Mutex
	store Store
}

// NewManager returns a Manager connecting to target with Open.
func NewManager(target string) *Manager {
	return NewManagerWithOpener(target, Open)
}

// NewManagerWithOpener returns a Manager connecting to target with the given opener.
func NewManagerWithOpener(target string, opener Opener) *Manager {
	return &Manager{
		target: target,
		opener: opener,
	}
}

// Target returns the connection target of the manager.
func (m *Manager) Target() string {
	return m.target
}

// Connect returns the live Store, opening it on first use.
// Concurrent first callers wait for a single connection attempt.
// A failed attempt is not cached.
func (m *Manager) Connect(ctx context.Context) (Store, error) {
	if s := m.current(); s != nil {
		return s, nil
	}

	v, err, _ := m.group.Do("connect", func() (interface{}, error) {
		if s := m.current(); s != nil {
			return s, nil
		}

		// Shared by all the waiters, the first caller going away must not fail them.
		s, err := m.opener(context.WithoutCancel(ctx), m.target)
		if err != nil {
			if !errors.Is(err, ErrConnection) {
				err = ConnectionError(err, "could not connect")
			}
			return nil, err
		}

		m.mu.Lock()
		m.store = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Store), nil
}

// Close closes the live Store if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}

	err := m.store.Close()
	m.store = nil
	return err
}

func (m *Manager) current() Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store
}
