// AuraModule - Edge Device Hub Runtime for the AURA Assistive Platform
// Copyright 2026 Deon George
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deon-george/auramodule

package backend

import "net"

// LocalIP returns the interface address the default route would use, via a
// connectionless UDP dial. No packets are sent. Falls back to loopback.
func LocalIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
