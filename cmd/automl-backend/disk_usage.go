// disk_usage.go — получение информации об ёмкости диска под хранилищем.
// Платформозависимый код для Unix-подобных систем.
package main

import (
	"fmt"
	"syscall"
)

// diskUsage — снимок ёмкости файловой системы в байтах.
type diskUsage struct {
	Total     int64
	Used      int64
	Available int64
}

// availableFraction возвращает долю свободного места (0 при пустом диске).
func (d diskUsage) availableFraction() float64 {
	if d.Total <= 0 {
		return 0
	}
	return float64(d.Available) / float64(d.Total)
}

// getDiskUsage возвращает снимок дискового пространства в директории.
func getDiskUsage(path string) (diskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return diskUsage{}, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	available := int64(stat.Bavail) * int64(stat.Bsize)

	return diskUsage{
		Total:     total,
		Used:      total - available,
		Available: available,
	}, nil
}
