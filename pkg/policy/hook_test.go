package policy

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
)

// blockSets serves SISMEMBER from memory, including inside pipelines.
type blockSets map[string]map[string]bool

func (b blockSets) answer(cmd redis.Cmder) error {
	if strings.ToLower(cmd.Name()) != "sismember" {
		return fmt.Errorf("unexpected command %s", cmd.Name())
	}
	args := cmd.Args()
	cmd.(*redis.BoolCmd).SetVal(b[fmt.Sprint(args[1])][fmt.Sprint(args[2])])
	return nil
}

func (b blockSets) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("unexpected dial to %s", addr)
	}
}

func (b blockSets) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return b.answer(cmd)
	}
}

func (b blockSets) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if err := b.answer(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}
