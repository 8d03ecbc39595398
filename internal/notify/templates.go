package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

// Templates are parsed once at startup. Each is a self-contained HTML body;
// subjects live alongside the render calls in mailer.go.
var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "welcome"}}
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: sans-serif;">
	<h2 style="color: #333;">Welcome to the beta!</h2>
	<p style="font-size: 16px; line-height: 1.5;">Hi {{.Name}},</p>
	<p style="font-size: 16px; line-height: 1.5;">You're in! You are signup <strong>#{{.Position}}</strong>.</p>
	<p style="font-size: 16px; line-height: 1.5;">Share your referral code and earn free subscription months for every friend who joins:</p>
	<div style="background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px;">
		<p style="font-size: 24px; font-weight: bold; text-align: center; color: #007bff;">{{.ReferralCode}}</p>
	</div>
	{{if .ShareURL}}<p style="font-size: 14px; line-height: 1.5;">Or share this link directly: <a href="{{.ShareURL}}">{{.ShareURL}}</a></p>{{end}}
	<p style="font-size: 12px; color: #999; margin-top: 20px;">This email was sent automatically, please do not reply.</p>
</div>
{{end}}

{{define "referral_credited"}}
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: sans-serif;">
	<h2 style="color: #333;">You earned a reward month!</h2>
	<p style="font-size: 16px; line-height: 1.5;">Hi {{.Name}},</p>
	<p style="font-size: 16px; line-height: 1.5;">Someone just signed up with your referral code. That makes <strong>{{.ReferralCount}}</strong> referrals so far.</p>
	<p style="font-size: 16px; line-height: 1.5;">Your subscription balance is now <strong>{{.Subscription}}</strong>.</p>
	<p style="font-size: 12px; color: #999; margin-top: 20px;">This email was sent automatically, please do not reply.</p>
</div>
{{end}}

{{define "milestone_reached"}}
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: sans-serif;">
	<h2 style="color: #333;">Milestone unlocked 🎉</h2>
	<p style="font-size: 16px; line-height: 1.5;">Hi {{.Name}},</p>
	<p style="font-size: 16px; line-height: 1.5;">You reached the <strong>{{.Milestone}}</strong> milestone and earned a bonus of <strong>{{.BonusMonths}} extra months</strong>.</p>
	<p style="font-size: 16px; line-height: 1.5;">Keep sharing your code to unlock the next one.</p>
	<p style="font-size: 12px; color: #999; margin-top: 20px;">This email was sent automatically, please do not reply.</p>
</div>
{{end}}

{{define "device_otp"}}
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: sans-serif;">
	<h2 style="color: #333;">Your device verification code</h2>
	<p style="font-size: 16px; line-height: 1.5;">Hi {{.Name}},</p>
	<p style="font-size: 16px; line-height: 1.5;">Enter this code to link your device:</p>
	<div style="background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px;">
		<p style="font-size: 28px; font-weight: bold; text-align: center; letter-spacing: 6px; color: #007bff;">{{.Code}}</p>
	</div>
	<p style="font-size: 14px; color: #666;">The code expires in {{.TTLMinutes}} minutes and can be used once.</p>
	<p style="font-size: 14px; color: #666;">If you did not request this code, you can ignore this email.</p>
</div>
{{end}}

{{define "magic_link"}}
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: sans-serif;">
	<h2 style="color: #333;">Your sign-in link</h2>
	<p style="font-size: 16px; line-height: 1.5;">Hi {{.Name}},</p>
	<p style="font-size: 16px; line-height: 1.5;">Click the button below to sign in to the admin console:</p>
	<div style="text-align: center; margin: 24px 0;">
		<a href="{{.LinkURL}}" style="background-color: #007bff; color: #fff; padding: 12px 24px; border-radius: 5px; text-decoration: none; font-size: 16px;">Sign in</a>
	</div>
	<p style="font-size: 14px; color: #666;">The link expires in {{.TTLMinutes}} minutes and can be used once.</p>
	<p style="font-size: 14px; color: #666;">If you did not request this link, change your password now.</p>
</div>
{{end}}

{{define "security_alert"}}
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: sans-serif;">
	<h2 style="color: #c0392b;">Security alert</h2>
	<p style="font-size: 16px; line-height: 1.5;">Hi {{.Name}},</p>
	<p style="font-size: 16px; line-height: 1.5;">{{.Message}}</p>
	<p style="font-size: 14px; color: #666;">Time: {{.When}}</p>
	{{if .RemoteIP}}<p style="font-size: 14px; color: #666;">Source address: {{.RemoteIP}}</p>{{end}}
	<p style="font-size: 14px; color: #666;">If this was you, no action is needed. Otherwise contact the operators immediately.</p>
</div>
{{end}}
`))

func renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", name, err)
	}
	return buf.String(), nil
}
