package httpc

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// 地址解析器，host形如 HOST[:PORT]，缺省80端口
type AddrResolver interface {
	Resolve(host string) ([]unix.Sockaddr, error)
}

type defaultResolver struct{}

func splitHostPort(host string) (string, int, error) {
	i := strings.LastIndexByte(host, ':')
	if i < 0 {
		return host, 80, nil
	}
	port, err := strconv.Atoi(host[i+1:])
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("%w: bad port in %q", ErrAddrResolution, host)
	}
	return host[:i], port, nil
}

func (defaultResolver) Resolve(host string) ([]unix.Sockaddr, error) {
	h, port, err := splitHostPort(host)
	if err != nil {
		return nil, err
	}
	ips, err := net.LookupIP(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAddrResolution, err)
	}
	var addrs []unix.Sockaddr
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			sa := &unix.SockaddrInet4{Port: port}
			copy(sa.Addr[:], ip4)
			addrs = append(addrs, sa)
		} else if ip16 := ip.To16(); ip16 != nil {
			sa := &unix.SockaddrInet6{Port: port}
			copy(sa.Addr[:], ip16)
			addrs = append(addrs, sa)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no usable address for %q", ErrAddrResolution, host)
	}
	return addrs, nil
}
