package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// 错误信息中保留的 stderr 长度
const stderrTail = 2048

// Executor 同步执行外部模拟程序并返回其 stdout
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string) ([]byte, error)
}

// ProcessExecutor 以子进程方式运行模拟程序
type ProcessExecutor struct{}

func (ProcessExecutor) Run(ctx context.Context, dir, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.Bytes(), fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > stderrTail {
			msg = msg[len(msg)-stderrTail:]
		}
		if msg != "" {
			return stdout.Bytes(), fmt.Errorf("%v: %s", err, msg)
		}
		return stdout.Bytes(), err
	}

	return stdout.Bytes(), nil
}
