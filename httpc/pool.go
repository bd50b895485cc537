package httpc

import (
	"sync"
	"sync/atomic"
)

/*
	按host划分的连接池
	每个host首次访问时一次性创建maxPerHost个Connection槽位，之后不增不减
	租借通过lease的CAS完成，不持有池锁
*/
type ConnectionPool struct {
	connsLock  sync.Mutex
	conns      map[string][]*Connection
	maxPerHost int
}

func NewConnectionPool(maxPerHost int) *ConnectionPool {
	return &ConnectionPool{
		conns:      make(map[string][]*Connection),
		maxPerHost: maxPerHost,
	}
}

func (p *ConnectionPool) hostPool(host string) []*Connection {
	p.connsLock.Lock()
	pool, ok := p.conns[host]
	if !ok {
		pool = make([]*Connection, 0, p.maxPerHost)
		for i := 0; i < p.maxPerHost; i++ {
			pool = append(pool, newConnection())
		}
		p.conns[host] = pool
	}
	p.connsLock.Unlock()
	return pool
}

// 返回nil表示全部在用
func (p *ConnectionPool) PickConnection(host string) *Connection {
	pool := p.hostPool(host)
	for _, conn := range pool {
		if atomic.CompareAndSwapInt32(&conn.lease, leaseIdle, leaseUsed) {
			return conn
		}
	}
	return nil
}

// 归还不做任何通知，排队的请求由Client的drain驱动
func (p *ConnectionPool) ReleaseConnection(conn *Connection) {
	atomic.StoreInt32(&conn.lease, leaseIdle)
}

// 快照查询，结果可能跟并发租借有偏差
func (p *ConnectionPool) UsedConnections(host string) int {
	p.connsLock.Lock()
	pool := p.conns[host]
	p.connsLock.Unlock()
	n := 0
	for _, conn := range pool {
		if conn.isConnected() {
			n++
		}
	}
	return n
}

func (p *ConnectionPool) IdleConnections(host string) int {
	p.connsLock.Lock()
	pool := p.conns[host]
	p.connsLock.Unlock()
	n := 0
	for _, conn := range pool {
		if conn.isIdle() {
			n++
		}
	}
	return n
}
