// Package remote selects dated files on an FTP server and downloads them into
// the local inbound directory.
package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"location-sync-service/pkg/errors"
)

// Client is the subset of an FTP session a fetch run needs
type Client interface {
	ChangeDir(path string) error
	NameList(path string) ([]string, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

// Dialer opens an authenticated session
type Dialer func(ctx context.Context, config *FetchConfig) (Client, error)

// ftpClient adapts *ftp.ServerConn to Client
type ftpClient struct {
	conn *ftp.ServerConn
}

func (c *ftpClient) ChangeDir(path string) error {
	return c.conn.ChangeDir(path)
}

func (c *ftpClient) NameList(path string) ([]string, error) {
	return c.conn.NameList(path)
}

func (c *ftpClient) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.conn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *ftpClient) Quit() error {
	return c.conn.Quit()
}

// DialFTP connects and logs in. A refused connection and a rejected login
// are both fatal network errors with distinct codes.
func DialFTP(ctx context.Context, config *FetchConfig) (Client, error) {
	addr := net.JoinHostPort(config.Server, strconv.Itoa(config.Port))

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, addr, err)
	}

	if err := conn.Login(config.Username, config.Password); err != nil {
		conn.Quit()
		return nil, errors.NetworkError(errors.CodeAuthFailed, addr,
			fmt.Errorf("login as %s: %w", config.Username, err))
	}

	return &ftpClient{conn: conn}, nil
}
