package xactor

import "context"

type result struct {
	resp interface{}
	err  error
}

type mail struct {
	ctx      context.Context
	req      interface{}
	t        mailType
	resultCh chan *result
}

func newMail(ctx context.Context, t mailType, req interface{}) *mail {
	return &mail{ctx: ctx, t: t, req: req, resultCh: make(chan *result, 1)}
}

type mailBox struct {
	mailCh  chan *mail
	closeCh <-chan struct{}
}

func newMailBox(closeCh <-chan struct{}) *mailBox {
	return &mailBox{
		mailCh:  make(chan *mail, mailMaxCount),
		closeCh: closeCh,
	}
}

func (box *mailBox) recvMail() <-chan *mail {
	return box.mailCh
}

// sendMail 阻塞投递, actor关闭或ctx取消时返回false
func (box *mailBox) sendMail(ctx context.Context, m *mail) bool {
	select {
	case box.mailCh <- m:
		return true
	case <-box.closeCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// trySendMail 非阻塞投递, 邮箱满时返回false
func (box *mailBox) trySendMail(m *mail) bool {
	select {
	case <-box.closeCh:
		return false
	default:
	}
	select {
	case box.mailCh <- m:
		return true
	default:
		return false
	}
}
