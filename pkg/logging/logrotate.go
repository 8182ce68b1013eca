package logging

import "fmt"

// LogrotateConfig creates a logrotate configuration for a copr component
func LogrotateConfig(component string) string {
	return fmt.Sprintf(`# Logrotate configuration for copr-%s
# Install: sudo cp this file to /etc/logrotate.d/copr-%s

%s/%s/*.log {
    weekly
    rotate 13
    compress
    delaycompress
    missingok
    notifempty
    create 0644 copr copr
    sharedscripts
    postrotate
        systemctl reload copr-%s 2>/dev/null || true
    endscript
}
`, component, component, DefaultLogDir, component, component)
}
