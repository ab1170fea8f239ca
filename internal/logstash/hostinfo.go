// Copyright 2025-2026 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logstash

import (
	"net"
	"os"
)

// Seams for tests that need host resolution stubbed without touching the
// operating system or the resolver.
var (
	lookupHostname = os.Hostname
	lookupHostIPs  = net.LookupIP
)

// ResolveSourceHost returns the local hostname, or "" when the operating
// system cannot provide one. Resolution never fails construction; an
// empty @source_host is preferable to refusing to log.
func ResolveSourceHost() string {
	name, err := lookupHostname()
	if err != nil {
		return ""
	}
	return name
}

// ResolveHostIP resolves name to an address, preferring IPv4, and returns
// "" when resolution fails or name is empty. The lookup may block on the
// resolver, which is why callers resolve once at construction instead of
// per record.
func ResolveHostIP(name string) string {
	if name == "" {
		return ""
	}
	ips, err := lookupHostIPs(name)
	if err != nil || len(ips) == 0 {
		return ""
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ips[0].String()
}
