package cron

import (
	"log"
	"time"

	"github.com/qs3c/autolaku_server/internal/repository"
)

// Service 周期清扫：把到期仍标 active 的订阅和授权码批量置为 expired
// 校验侧已有惰性翻转兜底，清扫的意义是让列表和统计不依赖读触发
type Service struct {
	subRepo     *repository.SubscriptionRepository
	licenseRepo *repository.LicenseRepository
	interval    time.Duration
	stopChan    chan struct{}
}

func NewService(subRepo *repository.SubscriptionRepository, licenseRepo *repository.LicenseRepository, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		subRepo:     subRepo,
		licenseRepo: licenseRepo,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Start 启动周期清扫，阻塞直到 Stop 被调用
func (s *Service) Start() {
	log.Printf("Expiry sweeper started, interval: %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 启动时先跑一轮，补上停机期间漏掉的
	s.RunOnce()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-s.stopChan:
			log.Println("Expiry sweeper stopped")
			return
		}
	}
}

func (s *Service) Stop() {
	close(s.stopChan)
}

// RunOnce 执行一轮清扫，返回翻转的订阅数和授权码数
func (s *Service) RunOnce() (int64, int64) {
	now := time.Now()

	subs, err := s.subRepo.ExpireOverdue(now)
	if err != nil {
		log.Printf("Failed to expire overdue subscriptions: %v", err)
	} else if subs > 0 {
		log.Printf("Expired %d overdue subscriptions", subs)
	}

	licenses, err := s.licenseRepo.ExpireOverdue(now)
	if err != nil {
		log.Printf("Failed to expire overdue licenses: %v", err)
	} else if licenses > 0 {
		log.Printf("Expired %d overdue licenses", licenses)
	}

	return subs, licenses
}
