// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package environment

import (
	"net"
)

// net6AllRouters is the IPv6 all-routers multicast address used as the
// destination for router solicitations.
var net6AllRouters = net.ParseIP("ff02::2")

func interfaceByName(name string) (*net.Interface, error) {
	return net.InterfaceByName(name)
}
