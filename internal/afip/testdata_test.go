package afip

import (
	"fmt"
	"html"
	"time"
)

func loginCmsResponseXML(token, sign string, generated, expires time.Time) string {
	inner := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<loginTicketResponse version="1.0"><header><source>CN=wsaahomo, O=AFIP, C=AR</source><destination>SERIALNUMBER=CUIT 20123456789</destination><uniqueId>123</uniqueId><generationTime>%s</generationTime><expirationTime>%s</expirationTime></header><credentials><token>%s</token><sign>%s</sign></credentials></loginTicketResponse>`,
		generated.Format("2006-01-02T15:04:05.000-07:00"), expires.Format("2006-01-02T15:04:05.000-07:00"), token, sign)
	return `<?xml version="1.0" encoding="UTF-8"?><soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body><loginCmsResponse xmlns="http://wsaa.view.sua.dvadac.desein.afip.gov"><loginCmsReturn>` +
		html.EscapeString(inner) + `</loginCmsReturn></loginCmsResponse></soapenv:Body></soapenv:Envelope>`
}

func soapFaultXML(code, msg string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body><soapenv:Fault><faultcode>` +
		code + `</faultcode><faultstring>` + msg + `</faultstring></soapenv:Fault></soapenv:Body></soapenv:Envelope>`
}

func wsfeResponseXML(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` + body + `</soap:Body></soap:Envelope>`
}
