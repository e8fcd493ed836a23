// Package sshutil connects to an SSH server and exposes the small SFTP file
// API the state store needs for keeping its record on a remote host.
//
// A state location is written as a URL:
//
//	sftp://ddns@backup.lan:2222/srv/ncddns/last_ip
//
// Host keys are verified against a known_hosts file unless
// Config.InsecureIgnoreHostKey is set. Authentication uses a private key
// file, a password, or both.
package sshutil
