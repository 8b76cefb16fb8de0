package seed

// DefaultDomains 内置领域
var DefaultDomains = []string{
	"智能医疗",
	"低碳交通",
	"工业质检",
	"教育评测",
	"灾害预警",
	"科研写作",
	"法律审查",
	"金融风控",
	"供应链调度",
	"文化创意",
	"智慧农业",
	"公共卫生",
	"航天测控",
	"智能制造",
	"文物修复",
	"智慧城市治理",
	"新能源运维",
	"跨境电商",
	"环境监测",
	"心理健康辅导",
	"体育竞技分析",
	"海洋探测",
	"智慧养老",
	"危化品监管",
}

var painPoints = []string{
	"缺乏结构化知识图谱支撑",
	"数据标注与清洗成本过高",
	"跨语言协同存在障碍",
	"模型决策过程可解释性不足",
	"多源异构数据难以有效融合",
	"跨场景迁移与泛化能力有限",
	"长期监测与持续评估机制缺失",
	"制度合规审查流程冗长",
	"决策流程中多主体协同效率低",
}

var impacts = []string{
	"系统性能与可靠性难以满足实际需求",
	"难以及时支撑关键业务决策",
	"用户体验割裂，信任度下降",
	"资源配置效率低下，运营成本上升",
	"难以形成可复用的方法论与技术路线",
}

var improvements = []string{
	"构建可复用的领域知识蒸馏链路",
	"引入对抗式评审强化事实一致性",
	"利用小模型联邦协作降低推理成本",
	"叠加记忆检索以保持上下文连贯",
	"自动生成实验报告与可视化图表",
	"形成闭环监控指标体系",
}

var deliverables = []string{
	"多轮交互脚本",
	"自监督训练集",
	"对话式质检模板",
	"跨域问答基准",
	"评估指标看板",
	"轻量部署方案",
}

// templates 占位符：{domain} {pain} {impact} {improve} {deliver} {case_id}
var templates = []string{
	"本研究聚焦{domain}任务，源于当前系统{pain}，为此拟{improve}，并计划交付{deliver}，以验证学术与工程价值。请围绕第{case_id}个案例撰写背景与挑战。",
	"在{domain}场景中，我们观察到{pain}导致关键流程受阻。项目计划{improve}，并形成{deliver}支撑多智能体协作，需描述案例{case_id}的痛点与研究目标。",
	"针对{domain}领域的产业实践，现有方案因{pain}而表现欠佳。本轮方案试图{improve}，并推出{deliver}以支撑论文与产品双场景，请说明第{case_id}号课题的动机与难点。",
	"面向{domain}治理需求，团队正在处理{pain}带来的连锁影响。我们计划{improve}，同时产出{deliver}，请撰写与案例{case_id}对应的背景、挑战与验证路径。",
	"{domain}相关的研究计划中，核心矛盾集中在{pain}。项目拟通过{improve}加以缓解，并构建{deliver}作为关键产物。请就第{case_id}个试点梳理问题起点、研究思路与预期贡献。",
	"在{domain}这一跨学科领域，我们需要解决{pain}，计划采用{improve}并交付{deliver}。请以案例{case_id}为例，描述数据来源、协作方式与落地目标。",
	"在{domain}领域的实践中，当前方案因{pain}而表现不足，导致{impact}。请写一段学术化的背景描述，概括研究动机与现实困境。",
	"本研究聚焦{domain}场景下的关键问题，即{pain}。试撰写一段研究引言，说明问题的重要性、现有不足以及拟解决方向。",
	"面向{domain}应用，本项目试图应对{pain}带来的挑战，请用学术语体写一段段落，交代研究背景、实践痛点与潜在贡献。",
}

// 模型生成种子的系统指令
const seedSystemPrompt = "你是多领域学术写作规划助手，请随机构造需要优化的中文学术项目背景段落，使其适合交给教师模型进行润色。" +
	"每段需包含: 研究背景/动机、现实痛点、拟采取的方法或技术路径、预期贡献。" +
	"保持中文学术语体，不写小标题，无需分点，不要引用真实机构，直接输出一段 80-200 字的文字。"

// DefaultFocusRequirement 没有要求时的写作重点
const DefaultFocusRequirement = "学术表达提升"
