package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv 读取 .env（ENV_FILE 可指定路径）；文件不存在时只用进程环境变量
func LoadEnv() {
	file := os.Getenv("ENV_FILE")
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("load %s: %v", file, err)
		}
		return
	}
	log.Printf("loaded env from %s", file)
}
