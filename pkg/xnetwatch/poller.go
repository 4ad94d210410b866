package xnetwatch

import (
	"context"
	"dstaping/pkg/xcommon"
	"dstaping/pkg/xlog"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultPollInterval = time.Second

type PollerArgs struct {
	Target    string        // 用于选择首选主接口的目标地址, 为空时取第一个可用接口
	Primary   string        // 指定主接口名, 优先于路由选择
	Secondary string        // 副接口名, 为空时不提供副接口
	Interval  time.Duration // 轮询间隔
}

// Poller 轮询系统接口列表, 变化时通知订阅者
type Poller struct {
	target    string
	primary   string
	secondary string
	interval  time.Duration

	mu   sync.Mutex
	subs subscribers
	last string

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        xcommon.WaitGroup
}

func NewPoller(ctx context.Context, arg PollerArgs) *Poller {
	if arg.Interval <= 0 {
		arg.Interval = defaultPollInterval
	}
	p := &Poller{
		target:    arg.Target,
		primary:   arg.Primary,
		secondary: arg.Secondary,
		interval:  arg.Interval,
		closeCh:   make(chan struct{}),
	}
	p.last, _ = fingerprint()

	p.wg.Add(1)
	go p.pollLoop(ctx)
	return p
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-p.closeCh:
			return
		}

		fp, err := fingerprint()
		if err != nil {
			xlog.Get(ctx).Warn("Poll interfaces failed.", zap.Any("err", err))
			continue
		}
		p.mu.Lock()
		changed := fp != p.last
		p.last = fp
		fns := p.subs.list()
		p.mu.Unlock()

		if changed {
			xlog.Get(ctx).Debug("Network changed.", zap.Int("subscribers", len(fns)))
			for _, fn := range fns {
				fn(ctx)
			}
		}
	}
}

func (p *Poller) Subscribe(fn OnChanged) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.subs.add(fn)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.subs.remove(id)
	}
}

func (p *Poller) PreferredPrimary(ctx context.Context) (Adapter, error) {
	if p.primary != "" {
		return lookup(p.primary)
	}
	if p.target != "" {
		a, err := routeTo(p.target)
		if err == nil {
			return a, nil
		}
		xlog.Get(ctx).Debug("Route lookup failed.", zap.String("target", p.target), zap.Any("err", err))
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return Adapter{}, errors.Wrap(err, "list interfaces")
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Name == p.secondary {
			continue
		}
		if usable(&iface) {
			return toAdapter(&iface), nil
		}
	}
	return Adapter{}, errors.New("no usable interface")
}

func (p *Poller) SecondaryFor(ctx context.Context, primary Adapter) (Adapter, bool, error) {
	if p.secondary == "" || p.secondary == primary.Name {
		return Adapter{}, false, nil
	}
	a, err := lookup(p.secondary)
	if err != nil {
		// 接口暂不存在, 等待下次变化
		return Adapter{}, false, nil
	}
	return a, true, nil
}

func (p *Poller) IsConnected(ctx context.Context, id string) bool {
	iface, err := net.InterfaceByName(id)
	if err != nil {
		return false
	}
	return usable(iface)
}

// Close 停止轮询
func (p *Poller) Close(ctx context.Context) {
	p.closeOnce.Do(func() {
		close(p.closeCh)
	})
	p.wg.Wait()
}

func lookup(name string) (Adapter, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return Adapter{}, errors.Wrapf(err, "interface %v", name)
	}
	return toAdapter(iface), nil
}

// routeTo 通过连接(不发送数据)获取系统选择的本地地址
func routeTo(target string) (Adapter, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return Adapter{}, errors.Wrapf(err, "route %v", target)
	}
	local := conn.LocalAddr().(*net.UDPAddr).IP
	_ = conn.Close()

	ifaces, err := net.Interfaces()
	if err != nil {
		return Adapter{}, errors.Wrap(err, "list interfaces")
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(local) {
				return toAdapter(&ifaces[i]), nil
			}
		}
	}
	return Adapter{}, errors.Errorf("no interface owns %v", local)
}

func usable(iface *net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagRunning == 0 {
		return false
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if ok && (ipnet.IP.IsGlobalUnicast() || ipnet.IP.IsLoopback()) {
			return true
		}
	}
	return false
}

func toAdapter(iface *net.Interface) Adapter {
	return Adapter{ID: iface.Name, Name: iface.Name, Index: iface.Index}
}

// fingerprint 接口名/状态/地址摘要
func fingerprint() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(ifaces))
	for i := range ifaces {
		addrs, _ := ifaces[i].Addrs()
		strs := make([]string, 0, len(addrs))
		for _, addr := range addrs {
			strs = append(strs, addr.String())
		}
		sort.Strings(strs)
		parts = append(parts, fmt.Sprintf("%v/%v/%v/%v", ifaces[i].Name, ifaces[i].Index, ifaces[i].Flags&(net.FlagUp|net.FlagRunning), strings.Join(strs, ",")))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";"), nil
}
