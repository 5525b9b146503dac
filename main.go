package main

import (
	"os"

	"ragchat/cmd"
)

// @title        RAGChat API
// @version      1.0
// @description  异步知识库问答服务：提交问题后轮询对话获取回答。
// @BasePath     /
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
