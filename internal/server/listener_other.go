//go:build !linux

package server

import "syscall"

// listenControl はLinux以外ではソケットオプションを変更しない
func listenControl(bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
