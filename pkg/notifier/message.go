package notifier

import (
	"fmt"
	"strings"

	"github.com/dewei/CancelRadar/pkg/model"
)

// 字段缺失时的显示默认值
const (
	DefaultName        = "Cliente"
	DefaultPackage     = "Paquete"
	DefaultDestination = "Destino"
)

// Subject 提醒邮件标题
const Subject = "Recordatorio: Confirmación de su Reserva"

// Message 渲染后的提醒
type Message struct {
	To      string
	Subject string
	Body    string
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Render 生成提醒内容
func Render(alert *model.Alert) Message {
	name := orDefault(alert.CustomerName, DefaultName)
	pkg := orDefault(alert.PackageName, DefaultPackage)
	dest := orDefault(alert.Destination, DefaultDestination)

	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\n", name)
	b.WriteString("Le recordamos que tiene una reserva pendiente:\n")
	fmt.Fprintf(&b, "  - Paquete: %s\n", pkg)
	fmt.Fprintf(&b, "  - Destino: %s\n", dest)
	fmt.Fprintf(&b, "  - Monto: $%s\n", alert.Amount.StringFixed(2))
	fmt.Fprintf(&b, "  - Referencia: %s\n\n", alert.SaleID)
	b.WriteString("Por favor, confirme su reserva lo antes posible.\n\n")
	b.WriteString("Gracias,\nAgencia de Viajes\n")

	return Message{
		To:      strings.TrimSpace(alert.ContactEmail),
		Subject: Subject,
		Body:    b.String(),
	}
}
