package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/zhouzirui/exec-dashboard/backend/internal/config"
	"github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
	"github.com/zhouzirui/exec-dashboard/backend/internal/service/ai"
)

// llmprobe 向配置的 LLM 发送一个问题，用于在部署前验证凭证与连通性。
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	question := pflag.String("question", "How is overall revenue trending?", "发送给模型的问题")
	system := pflag.String("system", "You are a retail analytics assistant. Answer briefly.", "系统提示词")
	stream := pflag.Bool("stream", false, "使用流式输出")
	timeout := pflag.Duration("timeout", 60*time.Second, "请求超时时间")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	if !cfg.AI.Enabled() {
		log.Fatal("LLM 未配置，请设置 LLAMASTACK_API_URL 或 Ark 凭证")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	svc, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("AI 服务初始化失败: %v", err)
	}

	if err := svc.Probe(ctx); err != nil {
		log.Fatalf("连通性探测失败: %v", err)
	}
	log.Println("连通性探测通过")

	messages := []conversation.Message{
		{Role: conversation.RoleUser, Content: *question},
	}

	start := time.Now()
	if *stream {
		if err := streamAnswer(ctx, svc, messages, *system); err != nil {
			log.Fatalf("流式回答失败: %v", err)
		}
	} else {
		answer, err := svc.Answer(ctx, messages, *system)
		if err != nil {
			log.Fatalf("回答失败: %v", err)
		}
		fmt.Println(answer)
	}
	log.Printf("耗时 %s", time.Since(start).Round(time.Millisecond))
}

func streamAnswer(ctx context.Context, svc *ai.Service, messages []conversation.Message, system string) error {
	reader, err := svc.StreamAnswer(ctx, messages, system)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if chunk != nil && chunk.Content != "" {
			fmt.Fprint(os.Stdout, chunk.Content)
		}
	}
	fmt.Println()
	return nil
}
